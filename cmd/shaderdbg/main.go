// Command shaderdbg replays a project on the CPU and writes its debug
// images: the colour buffer, the instruction heatmap, the undefined
// behavior overlay and, when breakpoints are set, the breakpoint overlay.
//
// Usage:
//
//	shaderdbg -project scene.toml -out debug [-scale 4] [-watch] [-expose var:line [-gpu]] [-v]
package main

import (
	"errors"
	"flag"
	"fmt"
	"image"
	"io"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/gogpu/shaderdbg"
	dbgimage "github.com/gogpu/shaderdbg/internal/image"
	"github.com/gogpu/shaderdbg/project"
)

type config struct {
	project string
	out     string
	scale   int
	watch   bool
	expose  string
	gpu     bool
	verbose bool
}

func main() {
	var cfg config
	flag.StringVar(&cfg.project, "project", "", "project file (.toml or .yaml)")
	flag.StringVar(&cfg.out, "out", ".", "output directory")
	flag.IntVar(&cfg.scale, "scale", 1, "integer upscale factor of the written images")
	flag.BoolVar(&cfg.watch, "watch", false, "re-run whenever the project or its shaders change")
	flag.StringVar(&cfg.expose, "expose", "", "write variable.png for a pixel shader variable, as name:line")
	flag.BoolVar(&cfg.gpu, "gpu", false, "render variable.png on a Vulkan device, falling back to the CPU")
	flag.BoolVar(&cfg.verbose, "v", false, "log debugger diagnostics")
	flag.Parse()

	if cfg.project == "" {
		flag.Usage()
		os.Exit(2)
	}
	if cfg.verbose {
		shaderdbg.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})))
	}
	if err := os.MkdirAll(cfg.out, 0o755); err != nil {
		log.Fatalf("shaderdbg: %v", err)
	}

	sources, err := run(&cfg)
	if err != nil && !cfg.watch {
		log.Fatalf("shaderdbg: %v", err)
	}
	if err != nil {
		log.Printf("shaderdbg: %v", err)
	}
	if cfg.watch {
		if err := watch(&cfg, sources); err != nil {
			log.Fatalf("shaderdbg: %v", err)
		}
	}
}

// run loads the project, renders every pass and writes the images. It
// returns the files to watch, which include the project itself even when
// loading failed.
func run(cfg *config) ([]string, error) {
	sources := []string{cfg.project}
	p, err := project.Load(cfg.project)
	if err != nil {
		return sources, err
	}
	sources = append(sources, p.Sources...)

	a := shaderdbg.New(p.Options()...)
	defer a.Close()
	a.SetBreakpoints(p.Breakpoints)
	a.Init(p.Width, p.Height, p.Passes[0].ClearColor)
	for _, pass := range p.Passes {
		if err := a.RenderPass(pass); err != nil {
			return sources, fmt.Errorf("pass %q: %w", pass.Name, err)
		}
	}

	w, h := a.Size()
	var errs []error
	save := func(name string, img image.Image, err error) {
		if err == nil {
			err = dbgimage.SavePNG(filepath.Join(cfg.out, name), dbgimage.Scale(img, cfg.scale))
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	img, err := dbgimage.FromPacked(w, h, a.Color())
	save("color.png", img, err)
	img, err = dbgimage.FromFloat(w, h, 3, a.AllocateHeatmap())
	save("heatmap.png", img, err)
	img, err = dbgimage.FromPacked(w, h, a.AllocateUndefinedBehaviorMap())
	save("ub.png", img, err)
	if bm := a.AllocateGlobalBreakpointsMap(); bm != nil {
		img, err = dbgimage.FromPacked(w, h, bm)
		save("breakpoints.png", img, err)
	}

	if cfg.expose != "" {
		pixels, err := exposeVariable(p, cfg.expose, cfg.gpu)
		if err == nil {
			img, err = dbgimage.FromFloat(w, h, 4, pixels)
		}
		save("variable.png", img, err)
	}

	report(os.Stdout, a)
	return sources, errors.Join(errs...)
}

type closingSurface interface {
	shaderdbg.Surface
	Close()
}

// exposeVariable renders the value of a variable in the last pass.
func exposeVariable(p *project.Project, arg string, onGPU bool) ([]float32, error) {
	name, lineStr, ok := strings.Cut(arg, ":")
	if !ok {
		return nil, fmt.Errorf("-expose %q: want name:line", arg)
	}
	line, err := strconv.Atoi(lineStr)
	if err != nil {
		return nil, fmt.Errorf("-expose %q: %w", arg, err)
	}
	pass := p.Passes[len(p.Passes)-1]
	if onGPU {
		surface, err := openGPU(pass, p.Width, p.Height)
		if err == nil {
			defer surface.Close()
			return shaderdbg.AllocateVariableValueMap(surface, name, line)
		}
		log.Printf("shaderdbg: -gpu: %v; exposing on the CPU", err)
	}
	surface := shaderdbg.NewSoftwareSurface(pass, p.Width, p.Height, p.Options()...)
	defer surface.Close()
	return shaderdbg.AllocateVariableValueMap(surface, name, line)
}

func report(w io.Writer, a *shaderdbg.Analyzer) {
	s := a.Stats()
	pr := message.NewPrinter(language.English)
	pr.Fprintf(w, "triangles:   %d processed, %d discarded, %d rasterized\n",
		s.TrianglesProcessed, s.TrianglesDiscarded, s.TrianglesRasterized)
	pr.Fprintf(w, "pixels:      %d shaded, %d discarded, %d failed depth, %d undefined behavior\n",
		s.PixelsShaded, s.PixelsDiscarded, s.PixelsFailedDepth, s.PixelsUndefinedBehavior)
	pr.Fprintf(w, "invocations: %d (%d shader errors)\n", s.Invocations, s.ShaderErrors)
	pr.Fprintf(w, "instructions: %d total, %.1f average, %d max per pixel\n",
		s.Instructions, s.InstructionsAverage(), s.InstructionsMax)
	if c := a.ConditionCacheStats(); c.Hits+c.Misses > 0 {
		pr.Fprintf(w, "conditions:  %d compiled, %d hits, %d misses, %d evicted\n",
			c.Len, c.Hits, c.Misses, c.Evictions)
	}
	if info := a.PixelInfo(); info.Captured {
		pr.Fprintf(w, "pixel (%d, %d): colour %v, depth %v, %d instructions, discarded %v\n",
			info.X, info.Y, info.Color, info.Depth, info.Instructions, info.Discarded)
	}
}
