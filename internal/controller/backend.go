package controller

import (
	"fmt"

	"github.com/dgnsrekt/tabtrim/internal/cdp"
	"github.com/dgnsrekt/tabtrim/internal/cdpcontrol"
	"github.com/dgnsrekt/tabtrim/internal/config"
)

// NewBrowser returns the CDP backend named by backend, bound to cdpURL.
func NewBrowser(backend, cdpURL string) (Browser, error) {
	registry := cdp.NewTabRegistry()
	switch backend {
	case config.BackendRaw, "":
		return cdpcontrol.NewClient(cdpURL, registry), nil
	case config.BackendChromedp:
		return cdp.NewClient(cdpURL, registry), nil
	default:
		return nil, fmt.Errorf("unknown browser backend %q", backend)
	}
}
