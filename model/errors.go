package model

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/url"

	"github.com/openai/openai-go/v3"

	"ragchat/types"
)

// classify maps an OpenAI SDK failure onto an error kind.
func classify(op string, err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return types.E(kindForStatus(apiErr.StatusCode), op, err)
	}
	if isConnectivity(err) {
		return types.E(types.KindConnectivity, op, err)
	}
	return types.E(types.KindProvider, op, err)
}

// wrapOllama maps an Ollama HTTP failure onto an error kind.
func wrapOllama(op string, err error) error {
	var se *statusError
	if errors.As(err, &se) {
		return types.E(kindForStatus(se.Code), op, err)
	}
	if isConnectivity(err) {
		return types.E(types.KindConnectivity, op, err)
	}
	return types.E(types.KindProvider, op, err)
}

func kindForStatus(code int) types.Kind {
	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return types.KindAuth
	case code == http.StatusTooManyRequests:
		return types.KindRateLimited
	default:
		return types.KindProvider
	}
}

func isConnectivity(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var urlErr *url.Error
	return errors.As(err, &urlErr)
}
