// Package service implements one Syncer per vendor plus the registry the
// orchestrator and HTTP handlers dispatch through.
package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	accountdomain "github.com/haoran127/costix-sub001/internal/account/domain"
	syncdomain "github.com/haoran127/costix-sub001/internal/sync/domain"
)

// credentialResolver turns a sync request into a usable admin credential:
// either the explicit admin_key or the unsealed key of the referenced
// platform account, which must belong to the requested platform.
type credentialResolver struct {
	accounts accountdomain.Service
}

func (r *credentialResolver) resolve(ctx context.Context, platform accountdomain.Platform, req syncdomain.Request) (string, *snowflake.ID, error) {
	if key := strings.TrimSpace(req.AdminKey); key != "" {
		return key, nil, nil
	}
	if req.PlatformAccountID == nil {
		return "", nil, syncdomain.ErrCredentialRequired
	}

	account, err := r.accounts.GetByID(ctx, *req.PlatformAccountID)
	if err != nil {
		return "", nil, err
	}
	if account.Platform != platform {
		return "", nil, accountdomain.ErrPlatformMismatch
	}
	key, err := r.accounts.AdminKey(ctx, account)
	if err != nil {
		return "", nil, err
	}
	return key, &account.ID, nil
}
