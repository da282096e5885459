// Command bmptool inspects, re-encodes and fingerprints BMP files from the
// command line.
package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"io"
	"os"

	"github.com/rcarmo/go-bmp/internal/codec"
	"github.com/rcarmo/go-bmp/internal/logging"
	"github.com/rcarmo/go-bmp/internal/pixbuf"
)

const usage = `USAGE: bmptool <command> [options] ARGS
COMMANDS:
  info FILE                      Print the header as JSON
  convert [options] IN OUT       Decode a BMP and encode it again
      -compress none|legacy|rle  Compression for 4-bit and 8-bit output (default none)
      -truecolor32               Write truecolor images as 32-bit
      -strict                    Fail on truncated pixel data
  checksum FILE                  Print the xxhash64 of the decoded pixels
  import IN OUT                  Convert a PNG, GIF or JPEG image to BMP
  export IN OUT                  Convert a BMP to PNG
`

var errUsage = errors.New("usage")

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run executes one command and returns the process exit code.
func run(args []string, stdout, stderr io.Writer) int {
	logging.Default().SetOutput(stderr)

	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return 2
	}

	var err error
	switch args[0] {
	case "info":
		err = cmdInfo(args[1:], stdout)
	case "convert":
		err = cmdConvert(args[1:], stdout)
	case "checksum":
		err = cmdChecksum(args[1:], stdout)
	case "import":
		err = cmdImport(args[1:])
	case "export":
		err = cmdExport(args[1:])
	case "help", "-help", "-h":
		fmt.Fprint(stdout, usage)
		return 0
	default:
		err = fmt.Errorf("%w: unknown command %q", errUsage, args[0])
	}

	if errors.Is(err, errUsage) {
		fmt.Fprintf(stderr, "%v\n%s", err, usage)
		return 2
	}
	if err != nil {
		logging.Error("%s: %v", args[0], err)
		return 1
	}
	return 0
}

func positional(fs *flag.FlagSet, args []string, n int) ([]string, error) {
	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("%w: %v", errUsage, err)
	}
	if fs.NArg() != n {
		return nil, fmt.Errorf("%w: %s takes %d arguments", errUsage, fs.Name(), n)
	}
	return fs.Args(), nil
}

func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

type headerInfo struct {
	Width           int32  `json:"width"`
	Height          int32  `json:"height"`
	BitCount        uint16 `json:"bitCount"`
	Compression     string `json:"compression"`
	HeaderSize      uint32 `json:"headerSize"`
	PaletteColors   int    `json:"paletteColors"`
	FileSize        uint32 `json:"fileSize"`
	DataOffset      uint32 `json:"dataOffset"`
	ImageSize       uint32 `json:"imageSize"`
	ColorsUsed      uint32 `json:"colorsUsed"`
	ColorsImportant uint32 `json:"colorsImportant"`
}

func cmdInfo(args []string, stdout io.Writer) error {
	files, err := positional(newFlagSet("info"), args, 1)
	if err != nil {
		return err
	}

	f, err := os.Open(files[0])
	if err != nil {
		return err
	}
	defer f.Close()

	h, err := codec.DecodeHeader(f)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(headerInfo{
		Width:           h.Width,
		Height:          h.Height,
		BitCount:        uint16(h.BitCount),
		Compression:     h.Compression.String(),
		HeaderSize:      h.HeaderSize,
		PaletteColors:   h.PaletteColorCount(),
		FileSize:        h.FileSize,
		DataOffset:      h.DataOffset,
		ImageSize:       h.ImageSize,
		ColorsUsed:      h.ColorsUsed,
		ColorsImportant: h.ColorsImportant,
	})
}

func cmdConvert(args []string, stdout io.Writer) error {
	fs := newFlagSet("convert")
	compress := fs.String("compress", "none", "compression for indexed output")
	truecolor32 := fs.Bool("truecolor32", false, "write truecolor images as 32-bit")
	strict := fs.Bool("strict", false, "fail on truncated pixel data")

	files, err := positional(fs, args, 2)
	if err != nil {
		return err
	}

	mode, err := codec.ParseCompressionMode(*compress)
	if err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}

	res, err := decodeFile(files[0], codec.DecodeOptions{Strict: *strict})
	if err != nil {
		return err
	}
	if res.Truncated {
		logging.Warn("%s: pixel data truncated, writing partial image", files[0])
	}

	n, err := writeFile(files[1], func(w io.Writer) error {
		return codec.NewEncoder(codec.Options{Compression: mode, Truecolor32: *truecolor32}).Encode(w, res.Image)
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(stdout, "%s: %dx%d, %d bytes\n", files[1], res.Image.Width(), res.Image.Height(), n)
	return nil
}

func cmdChecksum(args []string, stdout io.Writer) error {
	files, err := positional(newFlagSet("checksum"), args, 1)
	if err != nil {
		return err
	}

	res, err := decodeFile(files[0], codec.DecodeOptions{})
	if err != nil {
		return err
	}

	fmt.Fprintf(stdout, "%016x  %s\n", res.Image.Checksum(), files[0])
	return nil
}

func cmdImport(args []string) error {
	files, err := positional(newFlagSet("import"), args, 2)
	if err != nil {
		return err
	}

	in, err := os.Open(files[0])
	if err != nil {
		return err
	}
	defer in.Close()

	img, format, err := image.Decode(in)
	if err != nil {
		return err
	}
	logging.Debug("import %s: %s %v", files[0], format, img.Bounds())

	_, err = writeFile(files[1], func(w io.Writer) error {
		return codec.NewEncoder(codec.Options{}).Encode(w, pixbuf.FromImage(img))
	})
	return err
}

func cmdExport(args []string) error {
	files, err := positional(newFlagSet("export"), args, 2)
	if err != nil {
		return err
	}

	res, err := decodeFile(files[0], codec.DecodeOptions{})
	if err != nil {
		return err
	}

	_, err = writeFile(files[1], func(w io.Writer) error {
		return png.Encode(w, res.Image.Image())
	})
	return err
}

func decodeFile(path string, opts codec.DecodeOptions) (*codec.Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return codec.NewDecoder(opts).Decode(f)
}

// writeFile creates path, runs write on it and returns the size written.
func writeFile(path string, write func(io.Writer) error) (int64, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, err
	}

	if err := write(f); err != nil {
		_ = f.Close()
		return 0, err
	}

	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return 0, err
	}

	return info.Size(), f.Close()
}
