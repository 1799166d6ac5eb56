package probe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	xproxy "golang.org/x/net/proxy"

	"github.com/subgeo/subgeo/internal/model"
	"github.com/subgeo/subgeo/internal/synth"
)

// DefaultGeoURL is the geolocation endpoint queried through the core's local
// inbound. Only the fields the prober consumes are requested.
const DefaultGeoURL = "http://ip-api.com/json?fields=countryCode,country,query"

type geoResponse struct {
	CountryCode string `json:"countryCode"`
}

// errBadGeoAnswer marks a response that arrived over the wire but could not
// be understood. The prober classifies it internal-error, not network-error:
// the transport worked, the payload didn't.
var errBadGeoAnswer = errors.New("unusable geolocation response")

// GeoFunc resolves the exit country code of a core listening on the given
// local ports. It returns the raw country code; empty means the endpoint
// answered but carried no code.
type GeoFunc func(ctx context.Context, kind model.CoreKind, ports synth.Ports) (string, error)

// proxiedGeo builds the real lookup: clash exposes a plain HTTP proxy port,
// sing-box a mixed inbound which we drive over SOCKS5.
func proxiedGeo(endpoint string, timeout time.Duration) GeoFunc {
	return func(ctx context.Context, kind model.CoreKind, ports synth.Ports) (string, error) {
		var client *http.Client
		var err error
		switch kind {
		case model.CoreSingBox:
			client, err = socksProxyClient(ports.HTTP, timeout)
		default:
			client, err = httpProxyClient(ports.HTTP, timeout)
		}
		if err != nil {
			return "", err
		}
		defer client.CloseIdleConnections()
		return lookupCountry(ctx, client, endpoint)
	}
}

func httpProxyClient(port int, timeout time.Duration) (*http.Client, error) {
	proxyURL, err := url.Parse("http://127.0.0.1:" + strconv.Itoa(port))
	if err != nil {
		return nil, err
	}
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			Proxy:             http.ProxyURL(proxyURL),
			DisableKeepAlives: true,
		},
	}, nil
}

func socksProxyClient(port int, timeout time.Duration) (*http.Client, error) {
	dialer, err := xproxy.SOCKS5("tcp", "127.0.0.1:"+strconv.Itoa(port), nil, xproxy.Direct)
	if err != nil {
		return nil, err
	}
	ctxDialer, ok := dialer.(xproxy.ContextDialer)
	if !ok {
		return nil, fmt.Errorf("socks5 dialer lacks context support")
	}
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			DialContext:       ctxDialer.DialContext,
			DisableKeepAlives: true,
		},
	}, nil
}

func lookupCountry(ctx context.Context, client *http.Client, endpoint string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", err
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("geolocation endpoint returned %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return "", err
	}
	var parsed geoResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("%w: %v", errBadGeoAnswer, err)
	}
	return parsed.CountryCode, nil
}
