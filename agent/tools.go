package agent

import (
	"github.com/invopop/jsonschema"

	"hearth/llm"
)

// Argument shapes for the built-in smart-home toolset. The schemas tell the
// model what it may ask for; execution happens behind the ServiceExecutor.

type EntityActionParams struct {
	EntityId string `json:"entity_id" jsonschema:"required,description=The entity to act on, e.g. light.kitchen"`
}

type SetTemperatureParams struct {
	EntityId    string  `json:"entity_id" jsonschema:"required,description=The climate entity to adjust"`
	Temperature float64 `json:"temperature" jsonschema:"required,description=Target temperature in the configured unit"`
}

type QueryStateParams struct {
	EntityId string `json:"entity_id" jsonschema:"required,description=The entity whose state to read"`
}

var turnOnTool = &llm.Tool{
	Name:        "turn_on",
	Description: "Turn a device on (lights, switches, media players).",
	Parameters:  (&jsonschema.Reflector{DoNotReference: true}).Reflect(&EntityActionParams{}),
}

var turnOffTool = &llm.Tool{
	Name:        "turn_off",
	Description: "Turn a device off (lights, switches, media players).",
	Parameters:  (&jsonschema.Reflector{DoNotReference: true}).Reflect(&EntityActionParams{}),
}

var toggleTool = &llm.Tool{
	Name:        "toggle",
	Description: "Toggle a device between on and off.",
	Parameters:  (&jsonschema.Reflector{DoNotReference: true}).Reflect(&EntityActionParams{}),
}

var setTemperatureTool = &llm.Tool{
	Name:        "set_temperature",
	Description: "Set the target temperature of a climate entity.",
	Parameters:  (&jsonschema.Reflector{DoNotReference: true}).Reflect(&SetTemperatureParams{}),
}

var queryStateTool = &llm.Tool{
	Name:        "query_state",
	Description: "Read the current state of an entity, e.g. whether a light is on or a sensor's reading.",
	Parameters:  (&jsonschema.Reflector{DoNotReference: true}).Reflect(&QueryStateParams{}),
}

// BuiltinTools is the service-call surface exposed to the model.
func BuiltinTools() []*llm.Tool {
	return []*llm.Tool{
		turnOnTool,
		turnOffTool,
		toggleTool,
		setTemperatureTool,
		queryStateTool,
	}
}
