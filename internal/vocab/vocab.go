// Package vocab loads vocabulary bands keyed by developmental period.
package vocab

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// Band describes what the child can say during one vocabulary period.
type Band struct {
	Period                  string   `json:"period,omitempty"`
	LanguageCharacteristics []string `json:"language_characteristics"`
	ForbiddenPatterns       []string `json:"forbidden_patterns"`
	CoreVocabulary          []string `json:"core_vocabulary"`
	DevelopmentalStage      string   `json:"developmental_stage"`
	Fallback                bool     `json:"-"`
}

// maxExamples caps the vocabulary words quoted in prompts.
const maxExamples = 12

// Constraint renders the band as prompt guidance.
func (b Band) Constraint() string {
	if len(b.CoreVocabulary) == 0 {
		return "NO WORDS ALLOWED - Use only pre-linguistic sounds (cooing, crying, babbling)."
	}
	words := b.CoreVocabulary
	if len(words) > maxExamples {
		words = words[:maxExamples]
	}
	return "ALLOWED VOCABULARY (examples): " + strings.Join(words, ", ")
}

// Store reads band files from a directory and caches them by period.
type Store struct {
	dir    string
	logger *zap.Logger

	mu    sync.Mutex
	cache map[string]Band
}

// NewStore returns a store reading from dir. An empty dir serves only the
// built-in fallback bands.
func NewStore(dir string, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{dir: dir, logger: logger, cache: make(map[string]Band)}
}

// Get returns the band for period ("<year>.<period>"). Missing or unreadable
// files fall back to a static band for the year. Results are cached.
func (s *Store) Get(period string) Band {
	s.mu.Lock()
	defer s.mu.Unlock()

	if b, ok := s.cache[period]; ok {
		return b
	}

	b, err := s.load(period)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.logger.Warn("vocabulary band unreadable, using fallback",
				zap.String("period", period), zap.Error(err))
		}
		b = FallbackBand(period)
	}
	b.Period = period
	s.cache[period] = b
	return b
}

// load tries both file naming schemes in order.
func (s *Store) load(period string) (Band, error) {
	if s.dir == "" {
		return Band{}, fs.ErrNotExist
	}
	year, sub, ok := strings.Cut(period, ".")
	if !ok {
		return Band{}, fmt.Errorf("period %q: want <year>.<period>", period)
	}
	names := []string{
		fmt.Sprintf("vocabulary_%s_%s.json", year, sub),
		fmt.Sprintf("vocabulary_year_%s_period_%s.json", year, sub),
	}
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(s.dir, name))
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return Band{}, err
		}
		var b Band
		if err := json.Unmarshal(data, &b); err != nil {
			return Band{}, fmt.Errorf("%s: %w", name, err)
		}
		return b, nil
	}
	return Band{}, fs.ErrNotExist
}

// FallbackBand is the static band used when no file exists for period.
func FallbackBand(period string) Band {
	year, _, _ := strings.Cut(period, ".")
	y, _ := strconv.Atoi(year)
	switch y {
	case 1:
		return Band{
			LanguageCharacteristics: []string{"cooing", "crying", "babbling", "sound recognition"},
			ForbiddenPatterns:       []string{"words", "sentences", "complex sounds", "abstract concepts"},
			CoreVocabulary:          []string{},
			DevelopmentalStage:      "pre-linguistic",
			Fallback:                true,
		}
	case 2:
		return Band{
			LanguageCharacteristics: []string{"50-200 words", "two-word combinations", "naming objects"},
			ForbiddenPatterns:       []string{"complex sentences", "abstract reasoning", "future planning"},
			CoreVocabulary:          []string{"mama", "dada", "ball", "milk", "up", "down", "more", "no"},
			DevelopmentalStage:      "holophrastic",
			Fallback:                true,
		}
	default:
		return Band{
			LanguageCharacteristics: []string{"basic communication"},
			ForbiddenPatterns:       []string{"complex language"},
			CoreVocabulary:          []string{},
			DevelopmentalStage:      "basic",
			Fallback:                true,
		}
	}
}
