package detection

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// Column names understood by CSVSource and written by CSVWriter.
const (
	ColFrame      = "frame_number"
	ColTimestamp  = "timestamp_sec"
	ColClassName  = "class_name"
	ColClassID    = "class_id"
	ColConfidence = "confidence"
	ColX1         = "bbox_x1"
	ColY1         = "bbox_y1"
	ColX2         = "bbox_x2"
	ColY2         = "bbox_y2"
)

var csvHeader = []string{ColFrame, ColTimestamp, ColClassName, ColConfidence, ColX1, ColY1, ColX2, ColY2}

type csvRow struct {
	frame int
	det   Detection
	err   error
}

// CSVSource streams detections from a CSV file with one detection per row,
// grouping consecutive rows of the same frame_number into a Frame. Rows only
// need to exist for frames with detections.
type CSVSource struct {
	info    StreamInfo
	reader  *csv.Reader
	closer  io.Closer
	cols    map[string]int
	logger  zerolog.Logger
	warn    zerolog.Logger
	pending *csvRow
	line    int
	rows    int
	skipped int
	start   time.Time
}

// OpenCSV opens a detection CSV file.
func OpenCSV(path string, info StreamInfo, logger zerolog.Logger) (*CSVSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open detections file: %w", err)
	}
	src, err := NewCSVSource(f, info, logger)
	if err != nil {
		f.Close()
		return nil, err
	}
	src.closer = f
	return src, nil
}

// NewCSVSource reads the header from r and returns a source over the rows.
func NewCSVSource(r io.Reader, info StreamInfo, logger zerolog.Logger) (*CSVSource, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}

	cols := make(map[string]int, len(header))
	for i, col := range header {
		cols[strings.ToLower(strings.TrimSpace(col))] = i
	}
	for _, required := range []string{ColFrame, ColX1, ColY1, ColX2, ColY2} {
		if _, ok := cols[required]; !ok {
			return nil, errors.Errorf("detections CSV is missing column %q", required)
		}
	}
	_, hasName := cols[ColClassName]
	_, hasID := cols[ColClassID]
	if !hasName && !hasID {
		return nil, errors.Errorf("detections CSV needs a %q or %q column", ColClassName, ColClassID)
	}

	logger = logger.With().Str("component", "csv-source").Logger()
	return &CSVSource{
		info:   info,
		reader: reader,
		cols:   cols,
		logger: logger,
		warn:   logger.Sample(&zerolog.BurstSampler{Burst: 10, Period: time.Second}),
		line:   1,
		start:  time.Now(),
	}, nil
}

// Info implements Source.
func (s *CSVSource) Info() StreamInfo {
	return s.info
}

// Skipped returns the number of rows dropped as unreadable or malformed.
func (s *CSVSource) Skipped() int {
	return s.skipped
}

// Next implements Source. A frame whose rows are all malformed is still
// emitted, with no detections.
func (s *CSVSource) Next(ctx context.Context) (Frame, error) {
	if err := ctx.Err(); err != nil {
		return Frame{}, err
	}

	var frame Frame
	started := false
	for {
		row, err := s.nextRow()
		if err == io.EOF {
			if started {
				return frame, nil
			}
			s.logger.Debug().
				Int("rows", s.rows).
				Int("skipped", s.skipped).
				Dur("elapsed", time.Since(s.start)).
				Msg("CSV streaming complete")
			return Frame{}, io.EOF
		}
		if err != nil {
			return Frame{}, err
		}

		if !started {
			frame.Index = row.frame
			started = true
		} else if row.frame != frame.Index {
			s.pending = row
			return frame, nil
		}

		if row.err != nil {
			s.skipped++
			s.warn.Warn().Err(row.err).Int("frame", row.frame).Msg("skipping malformed detection row")
			continue
		}
		frame.Detections = append(frame.Detections, row.det)
	}
}

// Close releases the underlying file, if any.
func (s *CSVSource) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}

func (s *CSVSource) nextRow() (*csvRow, error) {
	if s.pending != nil {
		row := s.pending
		s.pending = nil
		return row, nil
	}

	for {
		record, err := s.reader.Read()
		if err == io.EOF {
			return nil, io.EOF
		}
		s.line++
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				s.skipped++
				s.warn.Warn().Err(err).Int("line", s.line).Msg("error reading CSV row")
				continue
			}
			return nil, fmt.Errorf("failed to read detections: %w", err)
		}
		s.rows++

		frame, err := strconv.Atoi(strings.TrimSpace(s.field(record, ColFrame)))
		if err != nil {
			s.skipped++
			s.warn.Warn().Err(err).Int("line", s.line).Msg("invalid frame_number, skipping row")
			continue
		}

		det, err := s.parseDetection(record, frame)
		return &csvRow{frame: frame, det: det, err: err}, nil
	}
}

func (s *CSVSource) field(record []string, col string) string {
	idx, ok := s.cols[col]
	if !ok || idx >= len(record) {
		return ""
	}
	return record[idx]
}

func (s *CSVSource) float(record []string, col string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s.field(record, col)), 64)
	if err != nil {
		return 0, errors.Wrapf(ErrMalformed, "invalid %s", col)
	}
	return v, nil
}

func (s *CSVSource) parseDetection(record []string, frame int) (Detection, error) {
	det := Detection{
		FrameIndex: frame,
		Timestamp:  s.info.Timestamp(frame),
		Confidence: 1,
	}

	if raw := strings.TrimSpace(s.field(record, ColClassID)); raw != "" {
		id, err := strconv.Atoi(raw)
		if err != nil {
			return det, errors.Wrapf(ErrMalformed, "invalid class_id %q", raw)
		}
		if det.Class, err = ClassFromCOCO(id); err != nil {
			return det, err
		}
	} else {
		det.Class = ParseClass(s.field(record, ColClassName))
	}

	if _, ok := s.cols[ColConfidence]; ok {
		c, err := s.float(record, ColConfidence)
		if err != nil {
			return det, err
		}
		det.Confidence = c
	}

	var err error
	if det.Box.XMin, err = s.float(record, ColX1); err != nil {
		return det, err
	}
	if det.Box.YMin, err = s.float(record, ColY1); err != nil {
		return det, err
	}
	if det.Box.XMax, err = s.float(record, ColX2); err != nil {
		return det, err
	}
	if det.Box.YMax, err = s.float(record, ColY2); err != nil {
		return det, err
	}
	return det, nil
}

// CSVWriter records frames in the format CSVSource reads.
type CSVWriter struct {
	w      *csv.Writer
	closer io.Closer
	fps    float64
}

// CreateCSV creates path and writes the header.
func CreateCSV(path string, fps float64) (*CSVWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create detections file: %w", err)
	}
	w, err := NewCSVWriter(f, fps)
	if err != nil {
		f.Close()
		return nil, err
	}
	w.closer = f
	return w, nil
}

// NewCSVWriter writes the header to w.
func NewCSVWriter(w io.Writer, fps float64) (*CSVWriter, error) {
	cw := &CSVWriter{w: csv.NewWriter(w), fps: fps}
	if err := cw.w.Write(csvHeader); err != nil {
		return nil, fmt.Errorf("failed to write CSV header: %w", err)
	}
	return cw, nil
}

// WriteFrame appends one row per detection.
func (w *CSVWriter) WriteFrame(f Frame) error {
	ts := 0.0
	if w.fps > 0 {
		ts = float64(f.Index) / w.fps
	}
	for _, d := range f.Detections {
		record := []string{
			strconv.Itoa(f.Index),
			strconv.FormatFloat(ts, 'f', 3, 64),
			d.Class.String(),
			strconv.FormatFloat(d.Confidence, 'f', 4, 64),
			strconv.FormatFloat(d.Box.XMin, 'f', 2, 64),
			strconv.FormatFloat(d.Box.YMin, 'f', 2, 64),
			strconv.FormatFloat(d.Box.XMax, 'f', 2, 64),
			strconv.FormatFloat(d.Box.YMax, 'f', 2, 64),
		}
		if err := w.w.Write(record); err != nil {
			return fmt.Errorf("failed to write detection: %w", err)
		}
	}
	return nil
}

// Close flushes buffered rows and closes the file, if any.
func (w *CSVWriter) Close() error {
	w.w.Flush()
	err := w.w.Error()
	if w.closer != nil {
		if cerr := w.closer.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
