// Package diagnostic is the pure, in-process diagnostic knowledge base: the
// appliance-type synonym lexicon and the troubleshooting step catalogue.
//
// It has no side effects and talks to no external collaborator — the
// relational persistence layer that would back a richer knowledge base is
// explicitly out of scope (spec §1 Non-goals).
package diagnostic

import (
	"sort"
	"strings"

	"github.com/antzucaro/matchr"
)

// fuzzyThreshold is the minimum Jaro-Winkler similarity required to accept a
// fuzzy match against the canonical lexicon when no exact synonym matches.
const fuzzyThreshold = 0.88

// synonyms maps every recognized free-form spelling to its canonical tag.
// Grounded on original_source's normalize_appliance_type table.
var synonyms = map[string]string{
	"washer":          "washer",
	"washing machine": "washer",
	"clothes washer":  "washer",
	"laundry machine": "washer",

	"dryer":         "dryer",
	"clothes dryer": "dryer",
	"tumble dryer":  "dryer",

	"refrigerator": "refrigerator",
	"fridge":       "refrigerator",
	"refridgerator": "refrigerator",
	"icebox":        "refrigerator",

	"dishwasher": "dishwasher",
	"dish washer": "dishwasher",

	"oven":    "oven",
	"stove":   "oven",
	"range":   "oven",
	"cooktop": "oven",

	"microwave": "microwave",

	"hvac":                "hvac",
	"ac":                  "hvac",
	"air conditioner":     "hvac",
	"air conditioning":    "hvac",
	"heat pump":           "hvac",
	"furnace":             "hvac",
	"heating":             "hvac",
	"central air":         "hvac",

	"garbage disposal": "garbage_disposal",
	"water heater":      "water_heater",
	"freezer":           "freezer",
}

// canonicalTags is the closed set of normalized appliance tags, used as the
// fuzzy-matching candidate pool.
var canonicalTags = func() []string {
	seen := make(map[string]struct{})
	for _, tag := range synonyms {
		seen[tag] = struct{}{}
	}
	tags := make([]string, 0, len(seen))
	for tag := range seen {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}()

// Normalize maps a free-form appliance description to its canonical tag.
// Exact synonym lookup (case/space-insensitive) is tried first; on a miss, a
// Jaro-Winkler fuzzy match against the canonical tag set is tried. If
// neither produces a confident match, Normalize returns the lowercased raw
// input and ok=false — the dispatcher passes that through rather than
// rejecting the call outright.
func Normalize(raw string) (tag string, ok bool) {
	trimmed := strings.ToLower(strings.TrimSpace(raw))
	if trimmed == "" {
		return "", false
	}
	if tag, found := synonyms[trimmed]; found {
		return tag, true
	}

	best, bestScore := "", 0.0
	for _, candidate := range canonicalTags {
		score := matchr.JaroWinkler(trimmed, candidate, false)
		if score > bestScore {
			best, bestScore = candidate, score
		}
	}
	if bestScore >= fuzzyThreshold {
		return best, true
	}
	return trimmed, false
}

// defaultTroubleshooting is returned when no appliance/symptom-specific entry
// matches.
var defaultTroubleshooting = []string{
	"Check that the unit is properly plugged in and receiving power",
	"Check the circuit breaker or fuse box for a tripped breaker",
	"Look for any error codes displayed on the unit and note them down",
	"Try unplugging the unit for 60 seconds, then plugging it back in",
	"Consult the appliance's user manual for troubleshooting specific to this model",
}

// knowledge maps a canonical appliance tag to a symptom-keyword -> steps map.
var knowledge = map[string]map[string][]string{
	"washer": {
		"won't start": {
			"Confirm the door or lid is fully latched",
			"Check that the water supply valves are fully open",
			"Verify the power cord is firmly seated in the outlet",
			"Try selecting a different wash cycle and pressing start again",
		},
		"won't drain": {
			"Check the drain hose for kinks or clogs",
			"Clean the drain pump filter, usually behind a small panel at the front base",
			"Make sure the drain hose isn't pushed in too far into the standpipe",
		},
		"leaking": {
			"Inspect the door seal/gasket for tears or trapped debris",
			"Check hose connections at both the wall and the back of the washer",
			"Avoid overloading the drum, which can stress the door seal",
		},
		"loud noise": {
			"Check for an unbalanced load and redistribute items evenly",
			"Make sure the washer is level on all four feet",
			"Inspect for coins or small objects caught between the drum and tub",
		},
	},
	"dryer": {
		"won't start": {
			"Confirm the door is fully closed",
			"Check the lint filter isn't blocking the door switch",
			"Verify the outlet and breaker are providing power",
		},
		"not heating": {
			"Clean the lint filter and exhaust vent — restricted airflow is the most common cause",
			"Check that the gas supply valve is open (gas dryers only)",
			"Verify the dryer's thermal fuse hasn't tripped",
		},
		"loud noise": {
			"Check the drum rollers and belt for wear",
			"Remove any small items that may have fallen out of pockets",
		},
	},
	"refrigerator": {
		"not cooling": {
			"Check that the condenser coils (usually underneath or in back) are free of dust",
			"Make sure the door seals fully and nothing is blocking it from closing",
			"Verify the temperature control hasn't been bumped to a warmer setting",
		},
		"leaking": {
			"Check the drain pan underneath for overflow",
			"Clear the defrost drain tube of ice or debris",
		},
		"loud noise": {
			"Make sure the unit is level",
			"Check that nothing is touching the compressor or fan in the back",
		},
	},
	"dishwasher": {
		"won't start": {
			"Confirm the door latch is fully engaged",
			"Check that the child lock isn't enabled",
			"Verify the circuit breaker hasn't tripped",
		},
		"not cleaning": {
			"Clean the spray arms' holes of any trapped debris",
			"Check the filter at the bottom of the tub and clean it",
			"Use a rinse aid and make sure the detergent dispenser opens fully",
		},
		"leaking": {
			"Check the door gasket for damage",
			"Make sure the unit is level so water doesn't pool on one side",
		},
	},
	"oven": {
		"not heating": {
			"Check that the igniter glows (gas ovens) or the bake element glows red (electric ovens)",
			"Verify the circuit breaker or gas supply is on",
			"Confirm the oven door closes fully — an open door can prevent proper heating",
		},
		"error code": {
			"Note the exact error code shown and power-cycle the unit at the breaker",
			"Check the user manual's error-code table for a specific reset sequence",
		},
	},
	"hvac": {
		"not cooling": {
			"Replace or clean the air filter, which is the most common cause of reduced airflow",
			"Check that the thermostat is set to cool and below room temperature",
			"Verify the outdoor unit isn't blocked by debris or vegetation",
		},
		"not heating": {
			"Check the thermostat batteries and settings",
			"Verify the furnace filter is clean",
			"Check that the pilot light is lit (older gas furnaces)",
		},
		"loud noise": {
			"Check for loose panels on the outdoor unit",
			"Replace a dirty air filter, which can cause the blower to strain",
		},
	},
}

// TroubleshootingSteps returns up to 5 steps for the given canonical
// appliance type and free-form symptom description. Matching is a
// substring match against the known symptom keys (either direction);
// on a miss, the 5-item default list is returned.
func TroubleshootingSteps(applianceType, symptom string) []string {
	symptomLower := strings.ToLower(strings.TrimSpace(symptom))
	entries, ok := knowledge[strings.ToLower(strings.TrimSpace(applianceType))]
	if ok {
		for key, steps := range entries {
			if strings.Contains(symptomLower, key) || strings.Contains(key, symptomLower) {
				return capSteps(steps)
			}
		}
	}
	return capSteps(defaultTroubleshooting)
}

func capSteps(steps []string) []string {
	if len(steps) <= 5 {
		return steps
	}
	return steps[:5]
}
