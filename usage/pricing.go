// Copyright 2025 IntentFlow
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package usage

import "strings"

// modelRate is the per-million-token price in USD.
type modelRate struct {
	input  float64
	output float64
}

// Published list prices, keyed by model name prefix. Estimates only:
// billing reconciliation happens against provider invoices, not here.
var rates = map[string]modelRate{
	"gpt-4o-mini":     {input: 0.15, output: 0.60},
	"gpt-4o":          {input: 2.50, output: 10.00},
	"gpt-4-turbo":     {input: 10.00, output: 30.00},
	"claude-3-5-haiku": {input: 0.80, output: 4.00},
	"claude-3-5":      {input: 3.00, output: 15.00},
	"claude-3-opus":   {input: 15.00, output: 75.00},
	"claude-3-haiku":  {input: 0.25, output: 1.25},
	"gemini-1.5-flash": {input: 0.075, output: 0.30},
	"gemini-1.5-pro":  {input: 1.25, output: 5.00},
	"gemini-2.0-flash": {input: 0.10, output: 0.40},
}

// EstimateCostUSD estimates the dollar cost of one completion. Unknown
// models cost zero; self-hosted models have no per-token price.
func EstimateCostUSD(model string, promptTokens, completionTokens int) float64 {
	// Bedrock model ids carry a vendor prefix, e.g. "anthropic.claude-3-5...".
	if idx := strings.Index(model, "."); idx >= 0 {
		model = model[idx+1:]
	}

	var best string
	for prefix := range rates {
		if strings.HasPrefix(model, prefix) && len(prefix) > len(best) {
			best = prefix
		}
	}
	if best == "" {
		return 0
	}

	rate := rates[best]
	return float64(promptTokens)/1_000_000*rate.input + float64(completionTokens)/1_000_000*rate.output
}
