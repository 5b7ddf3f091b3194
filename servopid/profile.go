// profile.go - Channel tuning profiles stored as JSON
package servopid

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"sort"

	"github.com/hipsterbrown/servopid/model"
)

// ChannelTuning holds the tunables of one channel as saved in a profile.
type ChannelTuning struct {
	ID int `json:"id"` // Channel ID
	model.Params
}

// NewChannelTuning creates a tuning with default parameters.
func NewChannelTuning(id int) *ChannelTuning {
	return &ChannelTuning{ID: id, Params: model.DefaultParams()}
}

// Validate checks if the tuning parameters are usable.
func (c *ChannelTuning) Validate() error {
	if c.ID < 0 || c.ID >= model.MaxChannels {
		return fmt.Errorf("invalid channel ID: %d (must be 0-%d)", c.ID, model.MaxChannels-1)
	}

	for _, f := range tunableFields {
		v, _ := c.Get(f)
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			return fmt.Errorf("%s must be finite, got %v", f, v)
		}
	}

	if c.DLambda < 0 {
		return fmt.Errorf("invalid d_lambda: %v (must be >= 0)", c.DLambda)
	}

	if c.InputMax != 0 && c.InputMin > c.InputMax {
		return fmt.Errorf("invalid input range: min (%v) must not exceed max (%v)", c.InputMin, c.InputMax)
	}

	return nil
}

// Clone creates a copy of the tuning.
func (c *ChannelTuning) Clone() *ChannelTuning {
	clone := *c
	return &clone
}

func (c *ChannelTuning) String() string {
	return fmt.Sprintf("Channel %d: P=%g I=%g D=%g DLambda=%g SetPoint=%g Input=[%g, %g]",
		c.ID, c.P, c.I, c.D, c.DLambda, c.SetPoint, c.InputMin, c.InputMax)
}

var tunableFields = []model.ChannelField{
	model.FieldP,
	model.FieldI,
	model.FieldD,
	model.FieldDLambda,
	model.FieldSetPoint,
	model.FieldInputMin,
	model.FieldInputMax,
}

// Profile maps channel IDs to their tuning.
type Profile map[int]*ChannelTuning

// LoadProfile loads a profile from a JSON file keyed by channel name.
func LoadProfile(filename string) (Profile, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read profile: %w", err)
	}

	var named map[string]*ChannelTuning
	if err := json.Unmarshal(data, &named); err != nil {
		return nil, fmt.Errorf("failed to parse profile: %w", err)
	}

	profile := make(Profile, len(named))
	for name, tuning := range named {
		if tuning == nil {
			return nil, fmt.Errorf("empty tuning for channel %s", name)
		}
		if err := tuning.Validate(); err != nil {
			return nil, fmt.Errorf("invalid tuning for channel %s: %w", name, err)
		}
		if _, exists := profile[tuning.ID]; exists {
			return nil, fmt.Errorf("duplicate channel ID %d found in profile", tuning.ID)
		}
		profile[tuning.ID] = tuning
	}

	return profile, nil
}

// SaveProfile writes a profile as JSON. Channels without an entry in names
// are saved as "channel_<id>".
func SaveProfile(filename string, profile Profile, names map[int]string) error {
	named := make(map[string]*ChannelTuning, len(profile))
	for id, tuning := range profile {
		name, exists := names[id]
		if !exists {
			name = fmt.Sprintf("channel_%d", id)
		}
		named[name] = tuning
	}

	data, err := json.MarshalIndent(named, "", "    ")
	if err != nil {
		return fmt.Errorf("failed to marshal profile: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write profile: %w", err)
	}

	return nil
}

// ProfileFromApp captures the current tunables of every channel.
func ProfileFromApp(app *model.App) Profile {
	profile := make(Profile)
	for _, ch := range app.Channels() {
		profile[ch.ID()] = &ChannelTuning{ID: ch.ID(), Params: ch.Params()}
	}
	return profile
}

// Validate checks every tuning in the profile.
func (p Profile) Validate() error {
	for _, id := range p.IDs() {
		if err := p[id].Validate(); err != nil {
			return err
		}
	}
	return nil
}

// IDs returns the channel IDs in ascending order.
func (p Profile) IDs() []int {
	ids := make([]int, 0, len(p))
	for id := range p {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// Apply writes the profile's tunables into app as local edits, so an
// attached engine sends them to the controller. Entries for channels the
// app does not have are skipped and reported in the returned error.
func (p Profile) Apply(app *model.App) (int, error) {
	applied := 0
	var missing []int

	for _, id := range p.IDs() {
		ch, ok := app.Channel(id)
		if !ok {
			missing = append(missing, id)
			continue
		}
		params := p[id].Params
		ch.Update(model.OriginLocal, func(dst *model.Params, _ *model.Telemetry) {
			*dst = params
		})
		applied++
	}

	if len(missing) > 0 {
		return applied, fmt.Errorf("%w: channels %v not present", ErrInvalidIndex, missing)
	}
	return applied, nil
}
