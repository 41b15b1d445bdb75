package platform

import (
	"net/url"
	"strings"
)

// AssetResolver turns a configured logo path into an absolute URL.
type AssetResolver struct {
	baseURL     string
	logo        string
	defaultLogo string
}

func NewAssetResolver(baseURL, logo, defaultLogo string) *AssetResolver {
	return &AssetResolver{
		baseURL:     strings.TrimSpace(baseURL),
		logo:        strings.TrimSpace(logo),
		defaultLogo: strings.TrimSpace(defaultLogo),
	}
}

func (a *AssetResolver) LogoURL() string {
	path := a.logo
	if path == "" {
		path = a.defaultLogo
	}
	if path == "" {
		return ""
	}
	if u, err := url.Parse(path); err == nil && u.IsAbs() {
		return path
	}
	if a.baseURL == "" {
		return "/" + strings.TrimLeft(path, "/")
	}
	joined, err := url.JoinPath(a.baseURL, strings.TrimLeft(path, "/"))
	if err != nil {
		return path
	}
	return joined
}
