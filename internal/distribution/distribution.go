// Package distribution adapts gonum's univariate distributions to the
// bulk-sampling contract used by the resolution engine. The random source is
// always passed in explicitly so runs can be seeded and replayed.
package distribution

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"sort"
	"strings"
	"time"

	"gonum.org/v1/gonum/stat/distuv"
)

var (
	// ErrUnknownDistribution is returned by New for unsupported names.
	ErrUnknownDistribution = errors.New("unknown distribution")

	// ErrInvalidArguments is returned when distribution arguments are out of range.
	ErrInvalidArguments = errors.New("invalid distribution arguments")

	// ErrUnsupportedFunction is returned when a sampler cannot evaluate a function.
	ErrUnsupportedFunction = errors.New("unsupported distribution function")
)

// Sampler draws values from a named probability distribution.
type Sampler interface {
	Name() string
	// Discrete reports whether samples are integral.
	Discrete() bool
	Sample(src rand.Source) float64
	Samples(src rand.Source, n int) []float64
	CDF(x float64) float64
	Prob(x float64) float64
	Quantile(p float64) (float64, error)
}

// NewSource returns a PCG-backed generator. A zero seed draws one from the clock.
func NewSource(seed uint64) *rand.Rand {
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

type univariate interface {
	Rand() float64
	CDF(x float64) float64
	Prob(x float64) float64
}

type quantiler interface {
	Quantile(p float64) float64
}

// gonumSampler builds a fresh gonum distribution per call, bound to the
// caller's source, so a Sampler value never holds random state.
type gonumSampler struct {
	name     string
	discrete bool
	args     string
	build    func(src rand.Source) univariate
}

func (g *gonumSampler) Name() string   { return g.name }
func (g *gonumSampler) Discrete() bool { return g.discrete }
func (g *gonumSampler) String() string { return g.name + "(" + g.args + ")" }

func (g *gonumSampler) Sample(src rand.Source) float64 {
	return g.build(src).Rand()
}

func (g *gonumSampler) Samples(src rand.Source, n int) []float64 {
	d := g.build(src)
	out := make([]float64, n)
	for i := range out {
		out[i] = d.Rand()
	}
	return out
}

func (g *gonumSampler) CDF(x float64) float64  { return g.build(nil).CDF(x) }
func (g *gonumSampler) Prob(x float64) float64 { return g.build(nil).Prob(x) }

func (g *gonumSampler) Quantile(p float64) (float64, error) {
	q, ok := g.build(nil).(quantiler)
	if !ok {
		return 0, fmt.Errorf("%w: %s has no quantile function", ErrUnsupportedFunction, g.name)
	}
	if p < 0 || p > 1 {
		return 0, fmt.Errorf("%w: quantile probability %v outside [0,1]", ErrInvalidArguments, p)
	}
	return q.Quantile(p), nil
}

// Normal returns a normal distribution sampler.
func Normal(mu, sigma float64) (Sampler, error) {
	if sigma <= 0 {
		return nil, fmt.Errorf("%w: normal sigma must be > 0, got %v", ErrInvalidArguments, sigma)
	}
	return &gonumSampler{name: "normal", args: fmt.Sprintf("mu=%g, sigma=%g", mu, sigma), build: func(src rand.Source) univariate {
		return distuv.Normal{Mu: mu, Sigma: sigma, Src: src}
	}}, nil
}

// Uniform returns a continuous uniform sampler on [min, max).
func Uniform(min, max float64) (Sampler, error) {
	if max <= min {
		return nil, fmt.Errorf("%w: uniform max must exceed min", ErrInvalidArguments)
	}
	return &gonumSampler{name: "uniform", args: fmt.Sprintf("min=%g, max=%g", min, max), build: func(src rand.Source) univariate {
		return distuv.Uniform{Min: min, Max: max, Src: src}
	}}, nil
}

// LogNormal returns a log-normal sampler.
func LogNormal(mu, sigma float64) (Sampler, error) {
	if sigma <= 0 {
		return nil, fmt.Errorf("%w: lognormal sigma must be > 0, got %v", ErrInvalidArguments, sigma)
	}
	return &gonumSampler{name: "lognormal", args: fmt.Sprintf("mu=%g, sigma=%g", mu, sigma), build: func(src rand.Source) univariate {
		return distuv.LogNormal{Mu: mu, Sigma: sigma, Src: src}
	}}, nil
}

// Exponential returns an exponential sampler.
func Exponential(rate float64) (Sampler, error) {
	if rate <= 0 {
		return nil, fmt.Errorf("%w: exponential rate must be > 0, got %v", ErrInvalidArguments, rate)
	}
	return &gonumSampler{name: "exponential", args: fmt.Sprintf("rate=%g", rate), build: func(src rand.Source) univariate {
		return distuv.Exponential{Rate: rate, Src: src}
	}}, nil
}

// Poisson returns a discrete Poisson sampler.
func Poisson(lambda float64) (Sampler, error) {
	if lambda <= 0 {
		return nil, fmt.Errorf("%w: poisson lambda must be > 0, got %v", ErrInvalidArguments, lambda)
	}
	return &gonumSampler{name: "poisson", discrete: true, args: fmt.Sprintf("lambda=%g", lambda), build: func(src rand.Source) univariate {
		return distuv.Poisson{Lambda: lambda, Src: src}
	}}, nil
}

// Binomial returns a discrete binomial sampler.
func Binomial(n, p float64) (Sampler, error) {
	if n < 0 || p < 0 || p > 1 {
		return nil, fmt.Errorf("%w: binomial requires n >= 0 and 0 <= p <= 1", ErrInvalidArguments)
	}
	return &gonumSampler{name: "binomial", discrete: true, args: fmt.Sprintf("n=%g, p=%g", n, p), build: func(src rand.Source) univariate {
		return distuv.Binomial{N: n, P: p, Src: src}
	}}, nil
}

// Triangular returns a triangular sampler with lower a, upper b and mode c.
func Triangular(a, b, c float64) (Sampler, error) {
	if !(a < b && a <= c && c <= b) {
		return nil, fmt.Errorf("%w: triangular requires a < b and a <= c <= b", ErrInvalidArguments)
	}
	return &gonumSampler{name: "triangular", args: fmt.Sprintf("a=%g, b=%g, c=%g", a, b, c), build: func(src rand.Source) univariate {
		return distuv.NewTriangle(a, b, c, src)
	}}, nil
}

// Beta returns a beta sampler.
func Beta(alpha, beta float64) (Sampler, error) {
	if alpha <= 0 || beta <= 0 {
		return nil, fmt.Errorf("%w: beta parameters must be > 0", ErrInvalidArguments)
	}
	return &gonumSampler{name: "beta", args: fmt.Sprintf("alpha=%g, beta=%g", alpha, beta), build: func(src rand.Source) univariate {
		return distuv.Beta{Alpha: alpha, Beta: beta, Src: src}
	}}, nil
}

// Gamma returns a gamma sampler with shape alpha and rate beta.
func Gamma(alpha, beta float64) (Sampler, error) {
	if alpha <= 0 || beta <= 0 {
		return nil, fmt.Errorf("%w: gamma parameters must be > 0", ErrInvalidArguments)
	}
	return &gonumSampler{name: "gamma", args: fmt.Sprintf("alpha=%g, beta=%g", alpha, beta), build: func(src rand.Source) univariate {
		return distuv.Gamma{Alpha: alpha, Beta: beta, Src: src}
	}}, nil
}

// Weibull returns a Weibull sampler with shape k and scale lambda.
func Weibull(k, lambda float64) (Sampler, error) {
	if k <= 0 || lambda <= 0 {
		return nil, fmt.Errorf("%w: weibull parameters must be > 0", ErrInvalidArguments)
	}
	return &gonumSampler{name: "weibull", args: fmt.Sprintf("k=%g, lambda=%g", k, lambda), build: func(src rand.Source) univariate {
		return distuv.Weibull{K: k, Lambda: lambda, Src: src}
	}}, nil
}

type constructor struct {
	args  []string
	build func(a []float64) (Sampler, error)
}

var registry = map[string]constructor{
	"normal":      {[]string{"mu", "sigma"}, func(a []float64) (Sampler, error) { return Normal(a[0], a[1]) }},
	"uniform":     {[]string{"min", "max"}, func(a []float64) (Sampler, error) { return Uniform(a[0], a[1]) }},
	"lognormal":   {[]string{"mu", "sigma"}, func(a []float64) (Sampler, error) { return LogNormal(a[0], a[1]) }},
	"exponential": {[]string{"rate"}, func(a []float64) (Sampler, error) { return Exponential(a[0]) }},
	"poisson":     {[]string{"lambda"}, func(a []float64) (Sampler, error) { return Poisson(a[0]) }},
	"binomial":    {[]string{"n", "p"}, func(a []float64) (Sampler, error) { return Binomial(a[0], a[1]) }},
	"triangular":  {[]string{"a", "b", "c"}, func(a []float64) (Sampler, error) { return Triangular(a[0], a[1], a[2]) }},
	"beta":        {[]string{"alpha", "beta"}, func(a []float64) (Sampler, error) { return Beta(a[0], a[1]) }},
	"gamma":       {[]string{"alpha", "beta"}, func(a []float64) (Sampler, error) { return Gamma(a[0], a[1]) }},
	"weibull":     {[]string{"k", "lambda"}, func(a []float64) (Sampler, error) { return Weibull(a[0], a[1]) }},
}

// Names returns the distribution names accepted by New.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// New builds a sampler from a name and named arguments, e.g.
// New("normal", map[string]float64{"mu": 0, "sigma": 1}).
func New(name string, args map[string]float64) (Sampler, error) {
	c, ok := registry[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("%w: %q (known: %s)", ErrUnknownDistribution, name, strings.Join(Names(), ", "))
	}
	values := make([]float64, len(c.args))
	for i, arg := range c.args {
		v, ok := args[arg]
		if !ok {
			return nil, fmt.Errorf("%w: %s requires %q", ErrInvalidArguments, name, arg)
		}
		values[i] = v
	}
	return c.build(values)
}
