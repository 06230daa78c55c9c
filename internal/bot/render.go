package bot

import "fmt"

// Values is the host live-data accessor consumed by the parameter renderers.
type Values interface {
	Get(path string) (interface{}, bool)
}

const notAvailable = "n/a"

func formatValue(values Values, path, unit string) string {
	v, ok := values.Get(path)
	if !ok {
		return notAvailable
	}
	switch t := v.(type) {
	case float64:
		return fmt.Sprintf("%g%s", t, unit)
	case string:
		return t + unit
	default:
		return notAvailable
	}
}

func renderPosition(values Values) string {
	v, ok := values.Get("navigation.position")
	pos, isMap := v.(map[string]interface{})
	if !ok || !isMap {
		return "Position: data not available"
	}
	return fmt.Sprintf("Position:\nLatitude: %v\nLongitude: %v\nSpeed: %s",
		pos["latitude"], pos["longitude"],
		formatValue(values, "navigation.speedOverGround", " kn"))
}

func renderWind(values Values) string {
	return fmt.Sprintf("Wind:\nSpeed: %s\nDirection: %s",
		formatValue(values, "meb.appleWindSpeed", " km/h"),
		formatValue(values, "meb.appleWindDirection", "°"))
}

func renderWaves(values Values) string {
	return fmt.Sprintf("Waves:\nHeight: %s\nPeriod: %s\nDirection: %s",
		formatValue(values, "meb.waves.height", " m"),
		formatValue(values, "meb.waves.period", " s"),
		formatValue(values, "meb.waves.direction", "°"))
}

func renderForecast(values Values) string {
	return fmt.Sprintf("Weather forecast:\nTemperature: %s",
		formatValue(values, "meb.temperature", " °C"))
}

func renderBatteries(values Values) string {
	return fmt.Sprintf("Batteries:\n"+
		"Traction voltage: %s\nTraction current: %s\nTraction SOC: %s\nTraction temperature: %s\n\n"+
		"Service voltage: %s\nService current: %s\nService SOC: %s\nService temperature: %s",
		formatValue(values, "electrical.batteries.1.voltage", " V"),
		formatValue(values, "electrical.batteries.1.current", " A"),
		formatValue(values, "electrical.batteries.1.capacity.stateOfCharge", "%"),
		formatValue(values, "electrical.batteries.1.temperature", " °C"),
		formatValue(values, "electrical.batteries.0.voltage", " V"),
		formatValue(values, "electrical.batteries.0.current", " A"),
		formatValue(values, "electrical.batteries.0.capacity.stateOfCharge", "%"),
		formatValue(values, "electrical.batteries.0.temperature", " °C"))
}

var liveRenderers = map[string]func(Values) string{
	"get_position":  renderPosition,
	"get_wind":      renderWind,
	"get_waves":     renderWaves,
	"get_forecasts": renderForecast,
	"get_batteries": renderBatteries,
}
