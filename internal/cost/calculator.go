package cost

// Rates holds per-model pricing configuration.
type Rates struct {
	Anthropic map[string]ModelRate `yaml:"anthropic" mapstructure:"anthropic"`
}

// ModelRate holds per-model token pricing (per million tokens).
type ModelRate struct {
	Input  float64 `yaml:"input" mapstructure:"input"`
	Output float64 `yaml:"output" mapstructure:"output"`
}

// Estimate is the priced usage of a single engine call, in USD.
type Estimate struct {
	InputCost  float64
	OutputCost float64
	Known      bool // false when the model has no configured rate
}

// Total returns the sum of input and output cost.
func (e Estimate) Total() float64 {
	return e.InputCost + e.OutputCost
}

// Calculator computes costs for API usage.
type Calculator struct {
	rates Rates
}

// NewCalculator creates a Calculator with the given rates.
func NewCalculator(rates Rates) *Calculator {
	return &Calculator{rates: rates}
}

// Estimate prices a call to model that consumed input and output tokens.
// Unknown models price at zero.
func (c *Calculator) Estimate(model string, input, output int64) Estimate {
	rate, ok := c.rates.Anthropic[model]
	if !ok {
		return Estimate{}
	}
	return Estimate{
		InputCost:  (float64(input) / 1e6) * rate.Input,
		OutputCost: (float64(output) / 1e6) * rate.Output,
		Known:      true,
	}
}

// DefaultRates returns the default pricing rates.
func DefaultRates() Rates {
	return Rates{
		Anthropic: map[string]ModelRate{
			"claude-haiku-4-5-20251001":  {Input: 1.00, Output: 5.00},
			"claude-sonnet-4-5-20250929": {Input: 3.00, Output: 15.00},
			"claude-sonnet-4-20250514":   {Input: 3.00, Output: 15.00},
			"claude-opus-4-1-20250805":   {Input: 15.00, Output: 75.00},
		},
	}
}
