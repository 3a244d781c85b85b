package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"

	"github.com/sony/gobreaker"

	"github.com/i474232898/city-forecast/internal/logger"
	"github.com/i474232898/city-forecast/internal/weather"
)

// OpenMeteoBaseURL is the public forecast endpoint.
const OpenMeteoBaseURL = "https://api.open-meteo.com/v1/forecast"

const (
	minutelyVariables = "temperature_2m,relative_humidity_2m,precipitation,wind_speed_10m"
	currentVariables  = "temperature_2m,pressure_msl,wind_speed_10m"
)

// OpenMeteoProvider implements weather.ForecastClient for Open-Meteo.
type OpenMeteoProvider struct {
	name    string
	baseURL string
	client  *http.Client
	l       *logger.Logger

	mu sync.Mutex
	// key: coordinate, one breaker per tracked location
	dayCircuits map[string]*gobreaker.CircuitBreaker
	// live weather is asked for arbitrary coordinates, so it shares one breaker
	currentCircuit *gobreaker.CircuitBreaker
}

// NewOpenMeteoProvider builds a provider; an empty baseURL selects the public endpoint.
func NewOpenMeteoProvider(client *http.Client, baseURL string, l *logger.Logger) *OpenMeteoProvider {
	if baseURL == "" {
		baseURL = OpenMeteoBaseURL
	}
	return &OpenMeteoProvider{
		name:    "openmeteo",
		baseURL: baseURL,
		client:  client,
		l:       l,

		dayCircuits:    make(map[string]*gobreaker.CircuitBreaker),
		currentCircuit: newCircuitBreaker("openmeteo:current"),
	}
}

// dayCircuit returns the breaker of one coordinate, so a failing location
// never opens the circuit for the others.
func (p *OpenMeteoProvider) dayCircuit(lat, lon float64) *gobreaker.CircuitBreaker {
	key := fmt.Sprintf("%.4f,%.4f", lat, lon)

	p.mu.Lock()
	defer p.mu.Unlock()

	cb, ok := p.dayCircuits[key]
	if !ok {
		cb = newCircuitBreaker("openmeteo:" + key)
		p.dayCircuits[key] = cb
	}
	return cb
}

func (p *OpenMeteoProvider) Name() string {
	return p.name
}

type minutelyPayload struct {
	Minutely15 *struct {
		Time               []string   `json:"time"`
		Temperature2m      []*float64 `json:"temperature_2m"`
		RelativeHumidity2m []*float64 `json:"relative_humidity_2m"`
		Precipitation      []*float64 `json:"precipitation"`
		WindSpeed10m       []*float64 `json:"wind_speed_10m"`
	} `json:"minutely_15"`
}

// FetchDay returns one day of 15-minute samples, timestamps in UTC.
func (p *OpenMeteoProvider) FetchDay(ctx context.Context, lat, lon float64) (weather.DayForecast, error) {
	values := p.coordinates(lat, lon)
	values.Set("minutely_15", minutelyVariables)
	values.Set("forecast_days", "1")
	values.Set("timezone", "GMT")

	var payload minutelyPayload
	if err := p.get(ctx, p.dayCircuit(lat, lon), values, &payload); err != nil {
		return weather.DayForecast{}, err
	}

	m := payload.Minutely15
	if m == nil {
		return weather.DayForecast{}, fmt.Errorf("%w: missing minutely_15", weather.ErrUpstreamFormat)
	}
	if m.Time == nil || m.Temperature2m == nil || m.RelativeHumidity2m == nil || m.Precipitation == nil || m.WindSpeed10m == nil {
		return weather.DayForecast{}, fmt.Errorf("%w: missing minutely_15 variable", weather.ErrUpstreamFormat)
	}

	n := len(m.Time)
	if n == 0 {
		return weather.DayForecast{}, fmt.Errorf("%w: empty minutely_15 series", weather.ErrUpstreamFormat)
	}
	if len(m.Temperature2m) != n || len(m.RelativeHumidity2m) != n || len(m.Precipitation) != n || len(m.WindSpeed10m) != n {
		return weather.DayForecast{}, fmt.Errorf("%w: minutely_15 series lengths differ", weather.ErrUpstreamFormat)
	}
	if n != weather.SlotsPerDay {
		p.l.Warning("unexpected minutely_15 series length", map[string]any{
			"expected": weather.SlotsPerDay,
			"got":      n,
			"lat":      lat,
			"lon":      lon,
		})
	}

	return weather.DayForecast{
		Times:         m.Time,
		Temperature:   m.Temperature2m,
		Humidity:      m.RelativeHumidity2m,
		Precipitation: m.Precipitation,
		WindSpeed:     m.WindSpeed10m,
	}, nil
}

type currentPayload struct {
	Current *struct {
		Temperature2m *float64 `json:"temperature_2m"`
		PressureMsl   *float64 `json:"pressure_msl"`
		WindSpeed10m  *float64 `json:"wind_speed_10m"`
	} `json:"current"`
}

// FetchCurrent returns live temperature, wind speed and sea-level pressure.
func (p *OpenMeteoProvider) FetchCurrent(ctx context.Context, lat, lon float64) (weather.Current, error) {
	values := p.coordinates(lat, lon)
	values.Set("current", currentVariables)

	var payload currentPayload
	if err := p.get(ctx, p.currentCircuit, values, &payload); err != nil {
		return weather.Current{}, err
	}
	if payload.Current == nil {
		return weather.Current{}, fmt.Errorf("%w: missing current", weather.ErrUpstreamFormat)
	}

	return weather.Current{
		Temperature: payload.Current.Temperature2m,
		WindSpeed:   payload.Current.WindSpeed10m,
		Pressure:    payload.Current.PressureMsl,
	}, nil
}

func (p *OpenMeteoProvider) coordinates(lat, lon float64) url.Values {
	values := url.Values{}
	values.Set("latitude", strconv.FormatFloat(lat, 'f', -1, 64))
	values.Set("longitude", strconv.FormatFloat(lon, 'f', -1, 64))
	return values
}

func (p *OpenMeteoProvider) get(ctx context.Context, cb *gobreaker.CircuitBreaker, values url.Values, dest any) error {
	u := fmt.Sprintf("%s?%s", p.baseURL, values.Encode())

	buildRequest := func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		return req, nil
	}

	p.l.Debug("making openmeteo API request", map[string]any{"url": u})

	resp, err := doRequest(ctx, p.client, cb, buildRequest)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("%w: decode: %v", weather.ErrUpstreamFormat, err)
	}
	return nil
}
