package domain

import (
	"fmt"
	"regexp"
)

// Payload is the raw run configuration handed to the simulation binary.
// The transport never looks inside it.
type Payload []byte

// Job represents one delivery pulled from the work queue
type Job struct {
	Payload     Payload
	DeliveryTag uint64
	Redelivered bool
	Slot        int
}

// envPathRE matches the env file reference embedded in a payload.
// Any single byte may separate the flowpath id from "env".
var envPathRE = regexp.MustCompile(
	`/i/(?P<scenario>[0-9]+)/env/(?P<huc8>[0-9]{8})/(?P<huc812>[0-9]{4})/` +
		`(?P<huc12>[0-9]{12})_(?P<fpath>[0-9]+).env`,
)

// RunKey identifies a single flowpath run
type RunKey struct {
	Scenario   string
	HUC8       string
	HUC812     string
	HUC12      string
	FlowpathID string
}

// ParseRunKey extracts the run key from the first env path found in the payload.
func ParseRunKey(p Payload) (RunKey, bool) {
	m := envPathRE.FindSubmatch(p)
	if m == nil {
		return RunKey{}, false
	}

	return RunKey{
		Scenario:   string(m[envPathRE.SubexpIndex("scenario")]),
		HUC8:       string(m[envPathRE.SubexpIndex("huc8")]),
		HUC812:     string(m[envPathRE.SubexpIndex("huc812")]),
		HUC12:      string(m[envPathRE.SubexpIndex("huc12")]),
		FlowpathID: string(m[envPathRE.SubexpIndex("fpath")]),
	}, true
}

// EnvPath returns the absolute env file path this key was parsed from
func (k RunKey) EnvPath() string {
	return k.path("env", "env")
}

// ErrorPath returns the absolute path of the failure artifact for this run
func (k RunKey) ErrorPath() string {
	return k.path("error", "error")
}

func (k RunKey) path(dir, ext string) string {
	return fmt.Sprintf("/i/%s/%s/%s/%s/%s_%s.%s",
		k.Scenario, dir, k.HUC8, k.HUC812, k.HUC12, k.FlowpathID, ext)
}
