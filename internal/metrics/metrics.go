package metrics

import (
	"errors"
	"math"
	"sort"

	"github.com/JetBrains/intellij-plugins-sub025/internal/frame"
	"github.com/JetBrains/intellij-plugins-sub025/internal/sample"
	"github.com/JetBrains/intellij-plugins-sub025/internal/scope"
)

type (
	// Function holds the self times observed for one frame.
	Function struct {
		Frame         frame.Frame
		Fingerprint   uint64
		SelfTimesNS   []uint64
		SumSelfTimeNS uint64
		SampleCount   int
	}

	FunctionsMetadata struct {
		MaxVal   uint64
		WorstID  string
		Examples []string
	}

	Aggregator struct {
		MaxUniqueFunctions uint
		MaxNumOfExamples   uint
		Functions          map[uint64]Function
		FunctionsMetadata  map[uint64]FunctionsMetadata
	}

	FunctionMetrics struct {
		Name        string   `json:"name"`
		Package     string   `json:"package"`
		Fingerprint uint64   `json:"fingerprint"`
		InApp       bool     `json:"in_app"`
		P75         uint64   `json:"p75"`
		P95         uint64   `json:"p95"`
		P99         uint64   `json:"p99"`
		Avg         float64  `json:"avg"`
		Sum         uint64   `json:"sum"`
		Count       uint64   `json:"count"`
		Worst       string   `json:"worst"`
		Examples    []string `json:"examples"`
	}
)

func NewAggregator(maxUniqueFunctions uint, maxNumOfExamples uint) Aggregator {
	return Aggregator{
		MaxUniqueFunctions: maxUniqueFunctions,
		MaxNumOfExamples:   maxNumOfExamples,
		Functions:          make(map[uint64]Function),
		FunctionsMetadata:  make(map[uint64]FunctionsMetadata),
	}
}

// FunctionsOf attributes the duration of every sample to its innermost
// in-scope frame. Samples without such a frame are skipped.
func FunctionsOf(samples []sample.Performance, filter scope.Filter) []Function {
	var functions []Function
	index := make(map[frame.Frame]int)
	for _, s := range samples {
		frames := scope.Apply(filter, s.Frames)
		if len(frames) == 0 {
			continue
		}
		f := frames[len(frames)-1]
		i, ok := index[f]
		if !ok {
			i = len(functions)
			index[f] = i
			functions = append(functions, Function{Frame: f, Fingerprint: f.Fingerprint()})
		}
		functions[i].SelfTimesNS = append(functions[i].SelfTimesNS, s.Duration)
		functions[i].SumSelfTimeNS += s.Duration
		functions[i].SampleCount++
	}
	return functions
}

// AddFunctions merges functions observed in the batch identified by ID.
func (ma *Aggregator) AddFunctions(functions []Function, ID string) {
	for _, f := range functions {
		if fn, ok := ma.Functions[f.Fingerprint]; ok {
			fn.SampleCount += f.SampleCount
			fn.SelfTimesNS = append(fn.SelfTimesNS, f.SelfTimesNS...)
			fn.SumSelfTimeNS += f.SumSelfTimeNS
			funcMetadata := ma.FunctionsMetadata[f.Fingerprint]
			if f.SumSelfTimeNS > funcMetadata.MaxVal {
				funcMetadata.MaxVal = f.SumSelfTimeNS
				funcMetadata.WorstID = ID
			}
			if len(funcMetadata.Examples) < int(ma.MaxNumOfExamples) {
				funcMetadata.Examples = append(funcMetadata.Examples, ID)
			}
			ma.FunctionsMetadata[f.Fingerprint] = funcMetadata
			ma.Functions[f.Fingerprint] = fn
		} else {
			f.SelfTimesNS = append([]uint64(nil), f.SelfTimesNS...)
			ma.Functions[f.Fingerprint] = f
			ma.FunctionsMetadata[f.Fingerprint] = FunctionsMetadata{
				MaxVal:   f.SumSelfTimeNS,
				WorstID:  ID,
				Examples: []string{ID},
			}
		}
	}
}

func (ma *Aggregator) ToMetrics() []FunctionMetrics {
	metrics := make([]FunctionMetrics, 0, len(ma.Functions))

	for _, f := range ma.Functions {
		if len(f.SelfTimesNS) == 0 {
			continue
		}
		sort.Slice(f.SelfTimesNS, func(i, j int) bool {
			return f.SelfTimesNS[i] < f.SelfTimesNS[j]
		})
		p75, _ := quantile(f.SelfTimesNS, 0.75)
		p95, _ := quantile(f.SelfTimesNS, 0.95)
		p99, _ := quantile(f.SelfTimesNS, 0.99)
		metrics = append(metrics, FunctionMetrics{
			Name:        f.Frame.Name(),
			Package:     f.Frame.Package(),
			Fingerprint: f.Fingerprint,
			InApp:       scope.NoLibraries.Matches(f.Frame),
			P75:         p75,
			P95:         p95,
			P99:         p99,
			Avg:         float64(f.SumSelfTimeNS) / float64(len(f.SelfTimesNS)),
			Sum:         f.SumSelfTimeNS,
			Count:       uint64(f.SampleCount),
			Worst:       ma.FunctionsMetadata[f.Fingerprint].WorstID,
			Examples:    ma.FunctionsMetadata[f.Fingerprint].Examples,
		})
	}
	sort.Slice(metrics, func(i, j int) bool {
		if metrics[i].Sum != metrics[j].Sum {
			return metrics[i].Sum > metrics[j].Sum
		}
		return metrics[i].Name < metrics[j].Name
	})
	if len(metrics) > int(ma.MaxUniqueFunctions) {
		metrics = metrics[:ma.MaxUniqueFunctions]
	}
	return metrics
}

func quantile(values []uint64, q float64) (uint64, error) {
	if len(values) == 0 {
		return 0, errors.New("cannot compute percentile from empty list")
	}
	if q <= 0 || q > 1 {
		return 0, errors.New("q must be a value between 0 and 1.0")
	}
	index := int(math.Ceil(float64(len(values))*q)) - 1
	return values[index], nil
}
