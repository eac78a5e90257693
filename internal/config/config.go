package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DataRoot          string
	Port              string
	Email             string
	ElsevierKey       string
	TabulaJar         string
	OCRLang           string
	OCRDPI            int
	Workers           int
	RequestsPerSecond float64
	DelayMin          time.Duration
	DelayMax          time.Duration
	RateLimitWait     time.Duration
	RulesPath         string

	CrossrefURL  string
	OpenAlexURL  string
	UnpaywallURL string
	ResolverURL  string
}

// Load reads .env (if present) and the process environment.
func Load() (Config, error) {
	_ = godotenv.Load()

	c := Config{
		DataRoot:     getenv("DATA_ROOT", "./data"),
		Port:         getenv("PORT", "8081"),
		Email:        getenv("API_EMAIL", "research@example.org"),
		ElsevierKey:  os.Getenv("ELSEVIER_API_KEY"),
		TabulaJar:    os.Getenv("TABULA_JAR"),
		OCRLang:      getenv("OCR_LANG", "eng"),
		RulesPath:    getenv("RULES_PATH", filepath.Join("config", "quality_rules.yaml")),
		CrossrefURL:  getenv("CROSSREF_URL", "https://api.crossref.org"),
		OpenAlexURL:  getenv("OPENALEX_URL", "https://api.openalex.org"),
		UnpaywallURL: getenv("UNPAYWALL_URL", "https://api.unpaywall.org"),
		ResolverURL:  getenv("DOI_RESOLVER_URL", "https://doi.org"),
	}

	var err error
	if c.OCRDPI, err = getint("OCR_DPI", 300); err != nil {
		return c, err
	}
	if c.Workers, err = getint("WORKERS", 4); err != nil {
		return c, err
	}
	if c.RequestsPerSecond, err = getfloat("REQUESTS_PER_SECOND", 2); err != nil {
		return c, err
	}
	if c.DelayMin, err = getduration("DOWNLOAD_DELAY_MIN", 2*time.Second); err != nil {
		return c, err
	}
	if c.DelayMax, err = getduration("DOWNLOAD_DELAY_MAX", 5*time.Second); err != nil {
		return c, err
	}
	if c.RateLimitWait, err = getduration("RATE_LIMIT_WAIT", 60*time.Second); err != nil {
		return c, err
	}
	if c.DelayMax < c.DelayMin {
		return c, fmt.Errorf("DOWNLOAD_DELAY_MAX (%s) is below DOWNLOAD_DELAY_MIN (%s)", c.DelayMax, c.DelayMin)
	}
	if c.Workers < 1 {
		c.Workers = 1
	}
	return c, nil
}

func (c Config) UserAgent() string {
	return fmt.Sprintf("SteelOA/1.0 (+mailto:%s)", c.Email)
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getint(k string, def int) (int, error) {
	v := os.Getenv(k)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def, fmt.Errorf("%s: %w", k, err)
	}
	return n, nil
}

func getfloat(k string, def float64) (float64, error) {
	v := os.Getenv(k)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def, fmt.Errorf("%s: %w", k, err)
	}
	return f, nil
}

func getduration(k string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(k)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def, fmt.Errorf("%s: %w", k, err)
	}
	return d, nil
}
