package app

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
)

const (
	ImagePNG  = "png"
	ImageJPEG = "jpeg"

	defaultWidth  = 1200
	defaultHeight = 400
)

type ImageFormat string

type Config struct {
	DBPath        string
	RunID         int64
	OutputFile    string
	Format        ImageFormat
	Theme         ColorTheme
	Width         int
	Height        int
	StartTime     *int64
	EndTime       *int64
	Verbose       bool
	NoAnnotations bool
}

var validImageFormats = map[ImageFormat]struct{}{
	ImagePNG:  {},
	ImageJPEG: {},
}

func NewConfig() *Config {
	return &Config{
		Format: ImagePNG,
		Theme:  ClassicTheme,
		Width:  defaultWidth,
		Height: defaultHeight,
	}
}

func NewConfigFromCLI() (*Config, error) {
	return parseFlags(flag.CommandLine, os.Args[1:])
}

func parseFlags(fs *flag.FlagSet, args []string) (*Config, error) {
	c := NewConfig()

	var imageFormat, theme string
	var startTime, endTime int64
	fs.StringVar(&c.DBPath, "db", "", "Path to the session database file")
	fs.Int64Var(&c.RunID, "run", 1, "Run ID")
	fs.StringVar(&c.OutputFile, "o", "", "Path to the output file, without extension")
	fs.StringVar(&imageFormat, "f", string(ImagePNG), "Output image format. [png, jpeg]")
	fs.StringVar(&theme, "theme", string(ClassicTheme), "Roll color theme. [classic, grayscale, jungle, thermal, marine]")
	fs.IntVar(&c.Width, "width", defaultWidth, "Width of the plot area in pixels")
	fs.IntVar(&c.Height, "height", defaultHeight, "Height of the plot area in pixels")
	fs.Int64Var(&startTime, "start", 0, "Only plot images captured at or after this timestamp")
	fs.Int64Var(&endTime, "end", 0, "Only plot images captured at or before this timestamp")
	fs.BoolVar(&c.Verbose, "verbose", false, "Enable more verbose output")
	fs.BoolVar(&c.NoAnnotations, "no-annotations", false, "Disable annotations such as time and altitude scales")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	imageFormat = strings.ToLower(imageFormat)

	var err error
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "start" {
			c.StartTime = &startTime
		}
		if f.Name == "end" {
			c.EndTime = &endTime
		}
	})

	if c.DBPath == "" {
		err = errors.New("db path is required")
	} else if c.RunID <= 0 {
		err = errors.New("run id is required")
	} else if c.OutputFile == "" {
		err = errors.New("output file is required")
	} else if _, ok := validImageFormats[ImageFormat(imageFormat)]; !ok {
		err = fmt.Errorf("invalid image format: %s", imageFormat)
	} else if _, ok := validThemes[ColorTheme(theme)]; !ok {
		err = fmt.Errorf("invalid color theme: %s", theme)
	} else if c.Width < 100 || c.Height < 100 {
		err = fmt.Errorf("plot area %dx%d is too small", c.Width, c.Height)
	}

	if err != nil {
		fs.Usage()
		return nil, err
	}

	c.Format = ImageFormat(imageFormat)
	c.Theme = ColorTheme(theme)
	c.OutputFile = fmt.Sprintf("%s.%s", c.OutputFile, c.Format)
	return c, nil
}
