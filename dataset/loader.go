package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"cytodx/errdefs"
)

type loadOptions struct {
	delimiter rune
	header    bool
	schema    *Schema
	rules     []RecordRule
	logger    *zap.Logger
}

type LoadOption func(*loadOptions)

// WithDelimiter sets the field separator. Default ','.
func WithDelimiter(r rune) LoadOption {
	return func(o *loadOptions) { o.delimiter = r }
}

// WithHeader makes the loader verify and skip a header row.
func WithHeader() LoadOption {
	return func(o *loadOptions) { o.header = true }
}

func WithSchema(s *Schema) LoadOption {
	return func(o *loadOptions) { o.schema = s }
}

// WithRules replaces the default record rule chain.
func WithRules(rules ...RecordRule) LoadOption {
	return func(o *loadOptions) { o.rules = rules }
}

func WithLogger(logger *zap.Logger) LoadOption {
	return func(o *loadOptions) { o.logger = logger }
}

// Load reads a headerless delimited file from path.
func Load(path string, opts ...LoadOption) (*Dataset, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: dataset %s", errdefs.ErrNotFound, path)
		}
		return nil, fmt.Errorf("open dataset %s: %w", path, err)
	}
	defer file.Close()

	ds, err := Read(file, opts...)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	return ds, nil
}

// Read parses delimited rows under the schema. Any bad row fails the whole read.
func Read(r io.Reader, opts ...LoadOption) (*Dataset, error) {
	o := loadOptions{delimiter: ',', schema: DefaultSchema()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	if err := o.schema.Validate(); err != nil {
		return nil, err
	}
	if o.rules == nil {
		o.rules = DefaultRules(o.schema)
	}

	// Spreadsheet exports often lead with a UTF-8 BOM.
	decoded := transform.NewReader(r, unicode.BOMOverride(unicode.UTF8.NewDecoder()))
	reader := csv.NewReader(decoded)
	reader.Comma = o.delimiter
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	reader.ReuseRecord = true

	width := len(o.schema.Columns)
	ds := &Dataset{Schema: o.schema}
	first := true
	for {
		fields, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				return nil, fmt.Errorf("%w: line %d: %v", errdefs.ErrParse, perr.Line, perr.Err)
			}
			return nil, fmt.Errorf("%w: %v", errdefs.ErrParse, err)
		}
		line, _ := reader.FieldPos(0)

		fields = dropTrailingEmpty(fields, width)
		if len(fields) != width {
			return nil, fmt.Errorf("%w: line %d: expected %d columns, got %d", errdefs.ErrSchema, line, width, len(fields))
		}

		if first && o.header {
			first = false
			if err := checkHeader(o.schema, fields); err != nil {
				return nil, fmt.Errorf("line %d: %w", line, err)
			}
			continue
		}
		first = false

		rec, err := parseRecord(o.schema, fields)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if err := applyRules(o.rules, rec); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		ds.Records = append(ds.Records, rec)
	}

	benign, malignant := ds.Counts()
	o.logger.Debug("dataset loaded",
		zap.Strings("features", o.schema.FeatureNames()),
		zap.Int("records", ds.Len()),
		zap.Int("benign", benign),
		zap.Int("malignant", malignant),
	)
	return ds, nil
}

// dropTrailingEmpty removes the unnamed column a trailing delimiter produces.
func dropTrailingEmpty(fields []string, width int) []string {
	if len(fields) == width+1 && strings.TrimSpace(fields[width]) == "" {
		return fields[:width]
	}
	return fields
}

func parseRecord(s *Schema, fields []string) (Record, error) {
	rec := Record{Features: make([]float64, 0, s.FeatureCount())}
	for i, col := range s.Columns {
		raw := strings.TrimSpace(fields[i])
		switch col.Role {
		case RoleID:
			continue
		case RoleLabel:
			label, err := s.Codec.Decode(raw)
			if err != nil {
				return Record{}, fmt.Errorf("column %s: %w", col.Name, err)
			}
			rec.Label = label
		case RoleFeature:
			v, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				return Record{}, fmt.Errorf("%w: column %s: %q is not a number", errdefs.ErrParse, col.Name, raw)
			}
			rec.Features = append(rec.Features, v)
		}
	}
	return rec, nil
}

func checkHeader(s *Schema, fields []string) error {
	for i, col := range s.Columns {
		if normalizeName(fields[i]) != normalizeName(col.Name) {
			return fmt.Errorf("%w: header column %d is %q, want %q", errdefs.ErrSchema, i, fields[i], col.Name)
		}
	}
	return nil
}

func normalizeName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	return strings.ReplaceAll(name, " ", "_")
}

// Write serializes ds in the headerless layout Read accepts, numbering ids from 1.
func Write(w io.Writer, ds *Dataset, opts ...LoadOption) error {
	o := loadOptions{delimiter: ','}
	for _, opt := range opts {
		opt(&o)
	}
	schema := ds.Schema
	if schema == nil {
		schema = DefaultSchema()
	}
	if err := schema.Validate(); err != nil {
		return err
	}
	rules := []RecordRule{NewFeatureCountRule(schema.FeatureCount()), LabelRule{}}

	writer := csv.NewWriter(w)
	writer.Comma = o.delimiter
	row := make([]string, len(schema.Columns))
	for n, rec := range ds.Records {
		if err := applyRules(rules, rec); err != nil {
			return fmt.Errorf("record %d: %w", n, err)
		}
		feature := 0
		for i, col := range schema.Columns {
			switch col.Role {
			case RoleID:
				row[i] = strconv.Itoa(n + 1)
			case RoleLabel:
				row[i] = schema.Codec.Encode(rec.Label)
			case RoleFeature:
				row[i] = strconv.FormatFloat(rec.Features[feature], 'g', -1, 64)
				feature++
			}
		}
		if err := writer.Write(row); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}
