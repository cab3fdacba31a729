// Command staticlint runs the project's static analysis suite: a fixed set
// of go/analysis passes, two third-party analyzers, the noexit analyzer and
// the staticcheck and stylecheck analyzers selected in config.json.
//
// config.json is looked up next to the executable unless STATICLINT_CONFIG
// names another file. Entries ending in "*" select every analyzer with that
// prefix, for example "SA*".
//
//	{
//	    "staticcheck": ["SA*"],
//	    "stylecheck": ["ST1005", "ST1019"]
//	}
package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/gordonklaus/ineffassign/pkg/ineffassign"
	"github.com/gostaticanalysis/nilerr"
	"golang.org/x/tools/go/analysis"
	"golang.org/x/tools/go/analysis/multichecker"
	"golang.org/x/tools/go/analysis/passes/copylock"
	"golang.org/x/tools/go/analysis/passes/errorsas"
	"golang.org/x/tools/go/analysis/passes/httpresponse"
	"golang.org/x/tools/go/analysis/passes/loopclosure"
	"golang.org/x/tools/go/analysis/passes/lostcancel"
	"golang.org/x/tools/go/analysis/passes/printf"
	"golang.org/x/tools/go/analysis/passes/structtag"
	"golang.org/x/tools/go/analysis/passes/unmarshal"
	"golang.org/x/tools/go/analysis/passes/unreachable"
	"honnef.co/go/tools/analysis/lint"
	"honnef.co/go/tools/staticcheck"
	"honnef.co/go/tools/stylecheck"

	"github.com/patric-chuzhbe/bloglist/cmd/staticlint/noexit"
)

const configFileName = `config.json`

type configData struct {
	Staticcheck []string `json:"staticcheck"`
	Stylecheck  []string `json:"stylecheck"`
}

func loadConfig() (*configData, error) {
	path := os.Getenv("STATICLINT_CONFIG")
	if path == "" {
		executable, err := os.Executable()
		if err != nil {
			return nil, err
		}
		path = filepath.Join(filepath.Dir(executable), configFileName)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	result := &configData{}
	if err := json.Unmarshal(data, result); err != nil {
		return nil, err
	}

	return result, nil
}

// selected reports whether name matches one of patterns.
func selected(name string, patterns []string) bool {
	for _, pattern := range patterns {
		if prefix, ok := strings.CutSuffix(pattern, "*"); ok && strings.HasPrefix(name, prefix) {
			return true
		}
		if pattern == name {
			return true
		}
	}

	return false
}

func pick(analyzers []*lint.Analyzer, patterns []string) []*analysis.Analyzer {
	var result []*analysis.Analyzer
	for _, a := range analyzers {
		if selected(a.Analyzer.Name, patterns) {
			result = append(result, a.Analyzer)
		}
	}

	return result
}

func main() {
	cfg, err := loadConfig()
	if err != nil {
		panic(err)
	}

	checks := []*analysis.Analyzer{
		copylock.Analyzer,
		errorsas.Analyzer,
		httpresponse.Analyzer,
		loopclosure.Analyzer,
		lostcancel.Analyzer,
		printf.Analyzer,
		structtag.Analyzer,
		unmarshal.Analyzer,
		unreachable.Analyzer,

		ineffassign.Analyzer,
		nilerr.Analyzer,

		noexit.Analyzer,
	}
	checks = append(checks, pick(staticcheck.Analyzers, cfg.Staticcheck)...)
	checks = append(checks, pick(stylecheck.Analyzers, cfg.Stylecheck)...)

	multichecker.Main(checks...)
}
