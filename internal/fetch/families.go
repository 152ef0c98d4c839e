package fetch

import (
	"os"
	"time"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/fleetops/kpi-cli/internal/model"
)

// FamilySettings tunes one metric family's primary-endpoint call.
type FamilySettings struct {
	// Function is the remote aggregation function name.
	Function string `yaml:"function"`

	// TimeoutSecs bounds the primary call. UTR is a cheap scan and gets a
	// short timeout; courier and value listings scan more rows.
	TimeoutSecs int `yaml:"timeout_secs"`

	// Params is the allow-list of filter parameters the endpoint accepts.
	// Anything outside the list is projected away before the call.
	Params []string `yaml:"params"`
}

// Timeout returns the call timeout as a duration.
func (s FamilySettings) Timeout() time.Duration {
	return time.Duration(s.TimeoutSecs) * time.Second
}

// Tuning holds per-family settings, loaded from families.yaml.
type Tuning struct {
	Families map[model.Family]FamilySettings `yaml:"families"`
}

var baseParams = []string{
	"year", "week", "regions", "sub_regions", "origins",
	"shift", "start_date", "end_date", "org_id",
}

// DefaultTuning returns the built-in family settings.
func DefaultTuning() *Tuning {
	return &Tuning{
		Families: map[model.Family]FamilySettings{
			model.FamilyUTR: {
				Function:    "utr_summary",
				TimeoutSecs: 8,
				Params:      baseParams,
			},
			model.FamilyCouriers: {
				Function:    "courier_summary",
				TimeoutSecs: 20,
				Params:      append(append([]string{}, baseParams...), "search"),
			},
			model.FamilyValues: {
				Function:    "financial_summary",
				TimeoutSecs: 20,
				Params:      baseParams,
			},
		},
	}
}

// LoadTuning reads family settings from a YAML file, filling gaps from the
// defaults.
func LoadTuning(path string) (*Tuning, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "fetch: read tuning %s", path)
	}

	var t Tuning
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, eris.Wrap(err, "fetch: parse tuning")
	}

	defaults := DefaultTuning()
	if t.Families == nil {
		t.Families = map[model.Family]FamilySettings{}
	}
	for fam, def := range defaults.Families {
		cur, ok := t.Families[fam]
		if !ok {
			t.Families[fam] = def
			continue
		}
		if cur.Function == "" {
			cur.Function = def.Function
		}
		if cur.TimeoutSecs <= 0 {
			cur.TimeoutSecs = def.TimeoutSecs
		}
		if len(cur.Params) == 0 {
			cur.Params = def.Params
		}
		t.Families[fam] = cur
	}

	return &t, nil
}

// Settings returns the tuning for one family.
func (t *Tuning) Settings(fam model.Family) FamilySettings {
	if s, ok := t.Families[fam]; ok {
		return s
	}
	return DefaultTuning().Families[fam]
}
