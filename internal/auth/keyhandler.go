package auth

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/interlock-api/interlock/internal/types"
)

// KeyHandler is a ready-made auth Handler that authenticates Bearer API
// keys against a KeyStore and checks role/scope grants. On success it
// attaches the resolved identity to the request for downstream stages.
type KeyHandler struct {
	store KeyStore
}

func NewKeyHandler(store KeyStore) *KeyHandler {
	return &KeyHandler{store: store}
}

func (h *KeyHandler) Evaluate(ctx context.Context, req *types.Request, roles, scopes []string, requireAll bool) (bool, error) {
	authHeader := req.Header.Get("Authorization")
	if authHeader == "" {
		return false, nil
	}
	token := strings.TrimPrefix(authHeader, "Bearer ")
	if token == authHeader || token == "" {
		return false, nil
	}

	meta, err := h.store.Lookup(ctx, HashKey(token))
	if err != nil {
		return false, fmt.Errorf("key lookup: %w", err)
	}
	if meta == nil {
		slog.Warn("auth failed: key not found", "key_prefix", KeyPrefix(token))
		return false, nil
	}

	if !Satisfies(roles, scopes, meta.Roles, meta.Scopes, requireAll) {
		slog.Warn("auth failed: insufficient grants",
			"key_id", meta.ID,
			"required_roles", roles,
			"required_scopes", scopes,
		)
		return false, nil
	}

	subject := meta.UserID
	if subject == "" {
		subject = meta.ID
	}
	types.SetIdentity(req, &types.Identity{
		ID:     subject,
		Roles:  meta.Roles,
		Scopes: meta.Scopes,
	})
	return true, nil
}
