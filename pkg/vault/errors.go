package vault

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"

	"github.com/hashicorp/vault/api"

	infraerrors "github.com/buun-ch/buun-stack/shared/infrastructure/errors"
)

// classify maps a Vault API failure to the secret store error taxonomy.
// 403 becomes a PermissionDeniedError, 5xx and transport failures a
// TransientError. Anything else is wrapped with the operation and path.
func classify(op, path string, err error) error {
	if err == nil {
		return nil
	}

	var respErr *api.ResponseError
	if errors.As(err, &respErr) {
		switch {
		case respErr.StatusCode == http.StatusForbidden:
			return infraerrors.NewPermissionDeniedError(op, path, err)
		case respErr.StatusCode >= http.StatusInternalServerError:
			return infraerrors.NewTransientError(op, err)
		}
		return fmt.Errorf("%s on %s: %w", op, path, err)
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s on %s: %w", op, path, err)
	}

	var urlErr *url.Error
	var netErr net.Error
	if errors.As(err, &urlErr) || errors.As(err, &netErr) {
		return infraerrors.NewTransientError(op, err)
	}

	return fmt.Errorf("%s on %s: %w", op, path, err)
}

// IsStatus reports whether err carries a Vault response with the given status.
func IsStatus(err error, status int) bool {
	var respErr *api.ResponseError
	if errors.As(err, &respErr) {
		return respErr.StatusCode == status
	}
	return false
}
