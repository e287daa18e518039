// Package artifact defines the typed payloads each pipeline stage
// produces and validates raw generator output against them. Generator
// output is a tagged union: every stage declares the Kind it emits, and
// the executor refuses to pass unvalidated bytes downstream.
package artifact

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Kind names a known stage-output shape.
type Kind string

// Known artifact kinds.
const (
	KindConcept   Kind = "concept"
	KindWorldLore Kind = "world_lore"
	KindFaction   Kind = "faction"
	KindCharacter Kind = "character"
	KindPlotArc   Kind = "plot_arc"
	KindQuestline Kind = "questline"
)

// Doc is implemented by all artifact payload types.
type Doc interface {
	// Validate reports whether the payload carries the fields a
	// downstream stage depends on.
	Validate() error
}

// Concept is a structured game concept document.
type Concept struct {
	Title          string `json:"title"`
	Genre          string `json:"genre,omitempty"`
	ElevatorPitch  string `json:"elevator_pitch"`
	CoreLoop       string `json:"core_loop,omitempty"`
	KeyMechanics   string `json:"key_mechanics,omitempty"`
	Progression    string `json:"progression,omitempty"`
	WorldSetting   string `json:"world_setting,omitempty"`
	ArtStyle       string `json:"art_style,omitempty"`
	TargetAudience string `json:"target_audience,omitempty"`
	Monetization   string `json:"monetization,omitempty"`
	USP            string `json:"usp,omitempty"`
}

// Validate implements Doc.
func (c *Concept) Validate() error {
	if c.Title == "" {
		return fmt.Errorf("concept: missing title")
	}
	if c.ElevatorPitch == "" {
		return fmt.Errorf("concept: missing elevator_pitch")
	}
	return nil
}

// WorldLore is the world-building document for a saga.
type WorldLore struct {
	WorldName         string `json:"world_name"`
	SettingOverview   string `json:"setting_overview"`
	Geography         string `json:"geography,omitempty"`
	CreationMyth      string `json:"creation_myth,omitempty"`
	HistoricalEras    string `json:"historical_eras,omitempty"`
	CurrentAge        string `json:"current_age,omitempty"`
	Civilizations     string `json:"civilizations,omitempty"`
	ReligionsBeliefs  string `json:"religions_beliefs,omitempty"`
	MagicOrTechnology string `json:"magic_or_technology,omitempty"`
	EconomyResources  string `json:"economy_resources,omitempty"`
	ConflictsTensions string `json:"conflicts_tensions,omitempty"`
	MysteriesLegends  string `json:"mysteries_legends,omitempty"`
	StoryPotential    string `json:"story_potential,omitempty"`
}

// Validate implements Doc.
func (w *WorldLore) Validate() error {
	if w.WorldName == "" {
		return fmt.Errorf("world_lore: missing world_name")
	}
	if w.SettingOverview == "" {
		return fmt.Errorf("world_lore: missing setting_overview")
	}
	return nil
}

// Faction is one organized group in the world.
type Faction struct {
	Name                string `json:"faction_name"`
	Motto               string `json:"motto_tagline,omitempty"`
	Type                string `json:"faction_type,omitempty"`
	CoreIdeology        string `json:"core_ideology"`
	Leader              string `json:"leader_profile,omitempty"`
	Headquarters        string `json:"headquarters,omitempty"`
	MilitaryStrength    string `json:"military_strength,omitempty"`
	EconomicPower       string `json:"economic_power,omitempty"`
	JoiningRequirements string `json:"joining_requirements,omitempty"`
	ReputationSystem    string `json:"reputation_system,omitempty"`
	Questline           string `json:"faction_questline,omitempty"`
	AlliedFactions      string `json:"allied_factions,omitempty"`
	RivalFactions       string `json:"rival_factions,omitempty"`
}

// Validate implements Doc.
func (f *Faction) Validate() error {
	if f.Name == "" {
		return fmt.Errorf("faction: missing faction_name")
	}
	if f.CoreIdeology == "" {
		return fmt.Errorf("faction: missing core_ideology")
	}
	return nil
}

// Character is one named character in the world.
type Character struct {
	Name           string `json:"character_name"`
	Type           string `json:"character_type,omitempty"`
	Role           string `json:"role_purpose"`
	Tagline        string `json:"tagline_quote,omitempty"`
	Appearance     string `json:"appearance,omitempty"`
	Personality    string `json:"personality_traits,omitempty"`
	Motivations    string `json:"motivations,omitempty"`
	MoralAlignment string `json:"moral_alignment,omitempty"`
	Arc            string `json:"character_arc,omitempty"`
	Backstory      string `json:"backstory,omitempty"`
	Relationships  string `json:"relationships,omitempty"`
	CombatStyle    string `json:"combat_style,omitempty"`
	Abilities      string `json:"class_abilities,omitempty"`
	Recruitment    string `json:"recruitment_conditions,omitempty"`
}

// Validate implements Doc.
func (c *Character) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("character: missing character_name")
	}
	if c.Role == "" {
		return fmt.Errorf("character: missing role_purpose")
	}
	return nil
}

// PlotArc is one three-act story arc.
type PlotArc struct {
	Title            string `json:"arc_title"`
	Type             string `json:"arc_type,omitempty"`
	CentralQuestion  string `json:"central_question"`
	Theme            string `json:"theme,omitempty"`
	ActOne           string `json:"act1,omitempty"`
	IncitingIncident string `json:"inciting_incident,omitempty"`
	ActTwo           string `json:"act2,omitempty"`
	MidpointTwist    string `json:"midpoint_twist,omitempty"`
	ActThree         string `json:"act3,omitempty"`
	ClimaxSequence   string `json:"climax_sequence,omitempty"`
	Resolution       string `json:"resolution,omitempty"`
	MajorChoices     string `json:"major_choice_points,omitempty"`
	MultipleEndings  string `json:"multiple_endings,omitempty"`
}

// Validate implements Doc.
func (p *PlotArc) Validate() error {
	if p.Title == "" {
		return fmt.Errorf("plot_arc: missing arc_title")
	}
	if p.CentralQuestion == "" {
		return fmt.Errorf("plot_arc: missing central_question")
	}
	return nil
}

// Questline is one playable quest chain.
type Questline struct {
	Name              string `json:"quest_name"`
	Type              string `json:"quest_type,omitempty"`
	Difficulty        string `json:"difficulty,omitempty"`
	EstimatedTime     string `json:"estimated_time,omitempty"`
	QuestGiver        string `json:"quest_giver,omitempty"`
	Hook              string `json:"hook_pitch"`
	Objectives        string `json:"objectives,omitempty"`
	Complications     string `json:"complications,omitempty"`
	Rewards           string `json:"rewards,omitempty"`
	BranchingOutcomes string `json:"branching_outcomes,omitempty"`
}

// Validate implements Doc.
func (q *Questline) Validate() error {
	if q.Name == "" {
		return fmt.Errorf("questline: missing quest_name")
	}
	if q.Hook == "" {
		return fmt.Errorf("questline: missing hook_pitch")
	}
	return nil
}

// newDoc returns an empty payload value for the given kind.
func newDoc(kind Kind) (Doc, error) {
	switch kind {
	case KindConcept:
		return &Concept{}, nil
	case KindWorldLore:
		return &WorldLore{}, nil
	case KindFaction:
		return &Faction{}, nil
	case KindCharacter:
		return &Character{}, nil
	case KindPlotArc:
		return &PlotArc{}, nil
	case KindQuestline:
		return &Questline{}, nil
	default:
		return nil, fmt.Errorf("artifact: unknown kind %q", kind)
	}
}

// DecodeDoc validates raw generator output as a single document of the
// given kind and returns its normalized encoding: known fields only,
// deterministic field order. Unknown trailing fields from the generator
// are dropped, not passed through.
func DecodeDoc(kind Kind, data []byte) (json.RawMessage, error) {
	doc, err := newDoc(kind)
	if err != nil {
		return nil, err
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(doc); err != nil {
		return nil, fmt.Errorf("artifact: decode %s: %w", kind, err)
	}
	if err := doc.Validate(); err != nil {
		return nil, fmt.Errorf("artifact: invalid %s: %w", kind, err)
	}

	normalized, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("artifact: encode %s: %w", kind, err)
	}
	return normalized, nil
}

// DecodeList validates raw generator output as a non-empty JSON array of
// documents of the given kind and returns each item normalized.
func DecodeList(kind Kind, data []byte) ([]json.RawMessage, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("artifact: decode %s list: %w", kind, err)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("artifact: empty %s list", kind)
	}

	items := make([]json.RawMessage, 0, len(raw))
	for i, r := range raw {
		item, err := DecodeDoc(kind, r)
		if err != nil {
			return nil, fmt.Errorf("artifact: %s item %d: %w", kind, i, err)
		}
		items = append(items, item)
	}
	return items, nil
}
