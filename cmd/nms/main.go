// Command nms runs non-maximum suppression over boxes read as JSON.
//
// The input is a JSON object {"boxes": [[[class, score, x1, y1, x2, y2], ...], ...]}
// holding one list of records per image. The output lists, per image, the
// kept anchor indices and the kept records.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/nvr-ai/go-nms/nms"
	"github.com/nvr-ai/go-nms/sorter"
)

// request is the input document.
type request struct {
	Boxes [][][]float64 `json:"boxes"`
}

// imageResult is the result for one image of the batch.
type imageResult struct {
	Indices []int32     `json:"indices"`
	Boxes   [][]float64 `json:"boxes"`
}

type response struct {
	Images    []imageResult `json:"images"`
	TotalKept int32         `json:"total_kept"`
}

func main() {
	if err := run(os.Args[1:], os.Stdin, os.Stdout); err != nil {
		log.Fatalf("❌ %v", err)
	}
}

func run(args []string, stdin io.Reader, stdout io.Writer) error {
	fs := flag.NewFlagSet("nms", flag.ContinueOnError)
	var (
		configFile = fs.String("config", "", "Path to configuration file (.yaml, .yml, .json)")
		inputFile  = fs.String("input", "", "Input JSON file (default stdin)")
		iou        = fs.Float64("iou", 0.5, "Override iou_threshold")
		score      = fs.Float64("score", 0, "Override score_threshold")
		topK       = fs.Int("top-k", -1, "Override top_k")
		sorterKind = fs.String("sorter", "", "Override the sorter (stable, radix)")
		debug      = fs.Bool("debug", false, "Log pipeline construction and stage timings")
	)
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: %s [options] < boxes.json\n\n", filepath.Base(os.Args[0]))
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return err
	}

	config := nms.DefaultConfig()
	if *configFile != "" {
		var err error
		if config, err = nms.LoadConfig(*configFile); err != nil {
			return errors.Wrap(err, "failed to load config")
		}
	}
	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })
	if set["iou"] {
		config.IoUThreshold = *iou
	}
	if set["score"] {
		config.ScoreThreshold = *score
	}
	if set["top-k"] {
		config.TopK = *topK
	}
	if *sorterKind != "" {
		config.Sorter = sorter.Kind(*sorterKind)
	}
	config.Debug = config.Debug || *debug
	config.ReturnIndices = true

	in := stdin
	if *inputFile != "" {
		f, err := os.Open(*inputFile)
		if err != nil {
			return errors.Wrap(err, "failed to open input")
		}
		defer f.Close()
		in = f
	}

	var req request
	if err := json.NewDecoder(in).Decode(&req); err != nil {
		return errors.Wrap(err, "failed to decode input")
	}
	data, err := toBatch(req.Boxes)
	if err != nil {
		return err
	}

	pipeline, err := nms.NewPipeline[float64](config)
	if err != nil {
		return err
	}
	out, err := pipeline.Run(data)
	if err != nil {
		return err
	}

	resp := response{Images: make([]imageResult, data.BatchSize), TotalKept: out.TotalKept}
	for i := range resp.Images {
		n := int(out.NumValidBoxes[i])
		img := imageResult{Indices: make([]int32, n), Boxes: make([][]float64, n)}
		for k := 0; k < n; k++ {
			anchor := out.BoxIndices[i*data.NumAnchors+k]
			img.Indices[k] = anchor
			img.Boxes[k] = append([]float64(nil), data.Box(i, int(anchor))...)
		}
		resp.Images[i] = img
	}

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(resp)
}

// toBatch packs ragged per-image lists into a dense batch, padding short
// images with Invalid records.
func toBatch(images [][][]float64) (*nms.Batch[float64], error) {
	numAnchors, elemLength := 0, 0
	for _, img := range images {
		numAnchors = max(numAnchors, len(img))
		for _, rec := range img {
			if elemLength == 0 {
				elemLength = len(rec)
			}
			if len(rec) != elemLength {
				return nil, errors.Wrapf(nms.ErrShapeMismatch, "records have %d and %d fields", elemLength, len(rec))
			}
		}
	}
	if elemLength == 0 {
		elemLength = 6
	}

	batch := nms.NewBatch[float64](len(images), numAnchors, elemLength)
	for i, img := range images {
		for j := 0; j < numAnchors; j++ {
			rec := batch.Box(i, j)
			if j < len(img) {
				copy(rec, img[j])
				continue
			}
			for k := range rec {
				rec[k] = nms.Invalid
			}
		}
	}
	return batch, nil
}
