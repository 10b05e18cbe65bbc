package llm

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"

	"google.golang.org/api/googleapi"

	"github.com/tabletalk/tabletalk/internal/errs"
)

// StatusError is returned by HTTP-based completers for non-2xx responses.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("completion request failed status=%d body=%s", e.Code, e.Body)
}

// Classify maps a provider failure onto an error kind: quota exhaustion,
// network failure, or anything else.
func Classify(err error) errs.Kind {
	if err == nil {
		return errs.Other
	}
	if kind := errs.KindOf(err); kind != errs.Other {
		return kind
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && apiErr.Code == http.StatusTooManyRequests {
		return errs.ProviderQuota
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) && statusErr.Code == http.StatusTooManyRequests {
		return errs.ProviderQuota
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "quota") || strings.Contains(msg, "resource_exhausted") || strings.Contains(msg, "resource exhausted") {
		return errs.ProviderQuota
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return errs.ProviderNetwork
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return errs.ProviderNetwork
	}
	if strings.Contains(msg, "network") {
		return errs.ProviderNetwork
	}
	return errs.ProviderOther
}
