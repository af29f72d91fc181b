package internal

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/phuslu/log"
	"github.com/spf13/afero"
	"golang.org/x/exp/maps"
	"gopkg.in/yaml.v3"
)

const ReportFilePrefix = "report_"

var reportNameRe = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

func (r *StressReport) String() string {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		log.Panic().Msgf("error marshalling report: %s", err)
	}
	return string(data)
}

func (r *StressReport) YAML() (string, error) {
	data, err := yaml.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("error marshalling report %s: %w", r.Name, err)
	}
	return string(data), nil
}

// DefaultReportName names a report after the time its run started.
func DefaultReportName(startedAt time.Time) string {
	return startedAt.UTC().Format("20060102T150405.000")
}

// ReportStore keeps stress reports as JSON files in Dir.
type ReportStore struct {
	Fs  afero.Fs
	Dir string
}

func NewReportStore(fs afero.Fs, dir string) *ReportStore {
	return &ReportStore{Fs: fs, Dir: dir}
}

func (s *ReportStore) GetPath(name string) string {
	return filepath.Join(s.Dir, fmt.Sprintf("%s%s.json", ReportFilePrefix, name))
}

func (s *ReportStore) Save(r StressReport) (string, error) {
	if r.Name == "" {
		r.Name = DefaultReportName(r.StartedAt)
	}
	if !reportNameRe.MatchString(r.Name) {
		return "", fmt.Errorf("invalid report name %q", r.Name)
	}
	log.Info().Msgf("Saving report %s", r.Name)
	if err := s.Fs.MkdirAll(s.Dir, 0755); err != nil {
		return "", fmt.Errorf("error creating report directory: %w", err)
	}
	filePath := s.GetPath(r.Name)
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", fmt.Errorf("error marshalling report: %w", err)
	}
	if err := afero.WriteFile(s.Fs, filePath, data, 0644); err != nil {
		return "", fmt.Errorf("error writing report file: %w", err)
	}
	return filePath, nil
}

// ReadAll loads every report in Dir keyed by name. A missing directory is an
// empty store.
func (s *ReportStore) ReadAll() (map[string]StressReport, error) {
	log.Debug().Msgf("Reading reports from %s", s.Dir)
	reports := make(map[string]StressReport)
	files, err := afero.ReadDir(s.Fs, s.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return reports, nil
		}
		return nil, fmt.Errorf("error reading report directory: %w", err)
	}
	for _, file := range files {
		if file.IsDir() || !strings.HasPrefix(file.Name(), ReportFilePrefix) || filepath.Ext(file.Name()) != ".json" {
			continue
		}
		filePath := filepath.Join(s.Dir, file.Name())
		data, err := afero.ReadFile(s.Fs, filePath)
		if err != nil {
			return nil, fmt.Errorf("error reading report file %q: %w", filePath, err)
		}
		var report StressReport
		if err := json.Unmarshal(data, &report); err != nil {
			return nil, fmt.Errorf("error unmarshalling report file %q: %w", filePath, err)
		}
		reports[report.Name] = report
	}
	return reports, nil
}

func (s *ReportStore) Names() ([]string, error) {
	reports, err := s.ReadAll()
	if err != nil {
		return nil, err
	}
	return SortedReportNames(reports), nil
}

func SortedReportNames(reports map[string]StressReport) []string {
	names := maps.Keys(reports)
	slices.Sort(names)
	return names
}

func (s *ReportStore) Get(name string) (StressReport, error) {
	data, err := afero.ReadFile(s.Fs, s.GetPath(name))
	if err != nil {
		return StressReport{}, fmt.Errorf("error reading report %s: %w", name, err)
	}
	var report StressReport
	if err := json.Unmarshal(data, &report); err != nil {
		return StressReport{}, fmt.Errorf("error unmarshalling report %s: %w", name, err)
	}
	return report, nil
}

// Reset removes the report directory and everything in it.
func (s *ReportStore) Reset() error {
	if err := s.Fs.RemoveAll(s.Dir); err != nil {
		return fmt.Errorf("error removing report directory: %w", err)
	}
	return nil
}
