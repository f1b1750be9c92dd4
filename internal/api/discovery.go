package api

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/avnet-iotconnect/iotc-go-rest-api/internal/metrics"
	iotcerr "github.com/avnet-iotconnect/iotc-go-rest-api/pkg/errors"
)

// Account platforms understood by the discovery service.
const (
	PlatformAWS   = "aws"
	PlatformAzure = "az"
)

// Endpoints holds the base URL of every service of an account.
type Endpoints struct {
	Master    string `json:"masterBaseUrl"`
	Auth      string `json:"authBaseUrl"`
	User      string `json:"userBaseUrl"`
	Device    string `json:"deviceBaseUrl"`
	Firmware  string `json:"firmwareBaseUrl"`
	Event     string `json:"eventBaseUrl"`
	Telemetry string `json:"telemetryBaseUrl"`
	File      string `json:"fileBaseUrl"`
}

// Endpoint keys used when persisting Endpoints.
const (
	EndpointMaster    = "master"
	EndpointAuth      = "auth"
	EndpointUser      = "user"
	EndpointDevice    = "device"
	EndpointFirmware  = "firmware"
	EndpointEvent     = "event"
	EndpointTelemetry = "telemetry"
	EndpointFile      = "file"
)

// Values returns the endpoints keyed by service name, omitting empty ones.
func (e *Endpoints) Values() map[string]string {
	out := make(map[string]string)
	for k, v := range map[string]string{
		EndpointMaster:    e.Master,
		EndpointAuth:      e.Auth,
		EndpointUser:      e.User,
		EndpointDevice:    e.Device,
		EndpointFirmware:  e.Firmware,
		EndpointEvent:     e.Event,
		EndpointTelemetry: e.Telemetry,
		EndpointFile:      e.File,
	} {
		if v != "" {
			out[k] = v
		}
	}
	return out
}

// EndpointsFromValues is the inverse of Endpoints.Values.
func EndpointsFromValues(v map[string]string) *Endpoints {
	return &Endpoints{
		Master:    v[EndpointMaster],
		Auth:      v[EndpointAuth],
		User:      v[EndpointUser],
		Device:    v[EndpointDevice],
		Firmware:  v[EndpointFirmware],
		Event:     v[EndpointEvent],
		Telemetry: v[EndpointTelemetry],
		File:      v[EndpointFile],
	}
}

// Merge returns a copy of e with every non-empty field of o applied on top.
func (e *Endpoints) Merge(o *Endpoints) *Endpoints {
	out := *e
	if o == nil {
		return &out
	}
	set := func(dst *string, v string) {
		if v != "" {
			*dst = strings.TrimRight(v, "/")
		}
	}
	set(&out.Master, o.Master)
	set(&out.Auth, o.Auth)
	set(&out.User, o.User)
	set(&out.Device, o.Device)
	set(&out.Firmware, o.Firmware)
	set(&out.Event, o.Event)
	set(&out.Telemetry, o.Telemetry)
	set(&out.File, o.File)
	return &out
}

// Empty reports whether no endpoint is known.
func (e *Endpoints) Empty() bool {
	return len(e.Values()) == 0
}

// DiscoveryRequest identifies the account to discover endpoints for.
type DiscoveryRequest struct {
	BaseURL     string
	SolutionKey string
	Env         string
	Platform    string
}

// Discover asks the discovery service for the account's endpoints. The
// call is unauthenticated.
func (c *Client) Discover(ctx context.Context, d DiscoveryRequest) (*Endpoints, error) {
	var missing []string
	if d.SolutionKey == "" {
		missing = append(missing, "Solution key")
	}
	if d.Env == "" {
		missing = append(missing, "Environment")
	}
	if len(missing) > 0 {
		return nil, iotcerr.WithMessage(iotcerr.ErrUsage, "discovery: missing %s", strings.Join(missing, ", "))
	}

	version := "2"
	if d.Platform == PlatformAWS {
		version = "2.1"
	}

	resp, err := c.Do(ctx, &Request{
		Method:  http.MethodGet,
		BaseURL: d.BaseURL,
		Path:    "/api/uisdk/solutionkey/" + url.PathEscape(d.SolutionKey) + "/env/" + url.PathEscape(d.Env),
		Query:   url.Values{"version": {version}, "pf": {d.Platform}},
		Header:  http.Header{HeaderAccept: {ContentTypeJSON}},
		Service: "discovery",
	})
	if err != nil {
		return nil, iotcerr.Wrap(err, "endpoint discovery failed")
	}

	ep, err := DecodeOne[Endpoints](resp)
	if err != nil {
		return nil, err
	}
	if ep == nil || ep.Empty() {
		return nil, iotcerr.WithMessage(iotcerr.ErrResponse, "endpoint discovery returned no endpoints")
	}
	trimmed := (&Endpoints{}).Merge(ep)
	return trimmed, nil
}

// ServiceFor returns the metrics bucket for an endpoint key.
func ServiceFor(endpoint string) string {
	switch endpoint {
	case EndpointAuth:
		return metrics.ServiceAuth
	case EndpointDevice:
		return metrics.ServiceDevice
	case EndpointUser:
		return metrics.ServiceUser
	case EndpointFirmware:
		return metrics.ServiceFirmware
	case EndpointFile:
		return metrics.ServiceFile
	default:
		return endpoint
	}
}
