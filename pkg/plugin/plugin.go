// Package plugin exposes the alignment tools to a host application: three
// region-driven alignment tools and a manual alignment action.
package plugin

import (
	"fmt"
	"log/slog"
	"slices"

	"stackalign/pkg/alignment"
	"stackalign/pkg/config"
	"stackalign/pkg/manual"
	"stackalign/pkg/registration"
	"stackalign/pkg/stack"
)

// Host is the part of the host application the plugin talks to.
type Host interface {
	// SelectedStack returns the stack the user is working on, or nil
	SelectedStack() *stack.Stack

	// Show displays a stack produced by a tool
	Show(s *stack.Stack)
}

// Predicate tells whether an action applies to a stack.
type Predicate func(s *stack.Stack) bool

// IsImage accepts stacks of 2D frames.
func IsImage(s *stack.Stack) bool {
	return s != nil && s.SignalDimension() == 2
}

// Method names the alignment run by a tool.
type Method int

const (
	// FreeForm aligns in 1D or 2D depending on the region
	FreeForm Method = iota
	// AlongVertical corrects vertical drift only
	AlongVertical
	// AlongHorizontal corrects horizontal drift only
	AlongHorizontal
)

// Tool describes an interactive region-selection tool.
type Tool struct {
	Name        string
	Icon        string
	Category    string
	Description string

	// ValidDimensions lists the region dimensionalities the tool accepts
	ValidDimensions []int

	// CancelOnAccept ends the selection once a region was accepted
	CancelOnAccept bool

	Method Method
}

// Action describes a menu or toolbar entry.
type Action struct {
	Name  string
	Label string
	Icon  string
	Tip   string

	// Enabled filters the selection the action applies to
	Enabled Predicate
}

// Options configures a Plugin.
type Options struct {
	// Estimator backs the automatic tools; defaults to
	// registration.NewEstimator
	Estimator alignment.Estimator

	// ImageFilter decides which stacks the manual action accepts;
	// defaults to IsImage
	ImageFilter Predicate

	Logger *slog.Logger
}

// Plugin wires the alignment engine and the manual tracker to a host.
type Plugin struct {
	host   Host
	engine *alignment.Engine
	filter Predicate
	fill   float64
	logger *slog.Logger
	tools  []Tool
}

// New creates the plugin from the application configuration.
func New(cfg *config.Config, host Host, opts Options) *Plugin {
	logger := opts.Logger
	if logger == nil {
		logger = config.Discard()
	}
	filter := opts.ImageFilter
	if filter == nil {
		filter = IsImage
	}
	estimator := opts.Estimator
	if estimator == nil {
		estimator = registration.NewEstimator()
	}
	return &Plugin{
		host:   host,
		engine: alignment.NewEngine(cfg.Align, estimator, logger),
		filter: filter,
		fill:   cfg.Align.FillValue,
		logger: logger,
		tools: []Tool{
			{
				Name:            "Align tool",
				Icon:            "align2d.svg",
				Category:        "Align",
				Description:     "Align images across the stack",
				ValidDimensions: []int{1, 2},
				CancelOnAccept:  true,
				Method:          FreeForm,
			},
			{
				Name:            "Align vertical tool",
				Icon:            "align_vertical.svg",
				Category:        "Align",
				Description:     "Align an image feature vertically across the stack",
				ValidDimensions: []int{2},
				CancelOnAccept:  true,
				Method:          AlongVertical,
			},
			{
				Name:            "Align horizontal tool",
				Icon:            "align_horizontal.svg",
				Category:        "Align",
				Description:     "Align an image feature horizontally across the stack",
				ValidDimensions: []int{2},
				CancelOnAccept:  true,
				Method:          AlongHorizontal,
			},
		},
	}
}

// Engine returns the alignment engine used by the tools.
func (p *Plugin) Engine() *alignment.Engine {
	return p.engine
}

// Tools returns the region-selection tools to register.
func (p *Plugin) Tools() []Tool {
	return slices.Clone(p.tools)
}

// Actions returns the actions to register in menus and toolbars.
func (p *Plugin) Actions() []Action {
	return []Action{{
		Name:    "manual_align",
		Label:   "Manual align",
		Icon:    "align_manual.svg",
		Tip:     "Interactively align the signal",
		Enabled: p.filter,
	}}
}

// Accept runs the tool named toolName on the selected stack with the given
// region and shows the result. Without a selected stack, or with a region
// the tool does not accept, nothing happens and (nil, nil) is returned.
func (p *Plugin) Accept(toolName string, roi alignment.ROI) (*alignment.Result, error) {
	idx := slices.IndexFunc(p.tools, func(t Tool) bool { return t.Name == toolName })
	if idx < 0 {
		return nil, fmt.Errorf("unknown tool %q", toolName)
	}
	tool := p.tools[idx]

	s := p.host.SelectedStack()
	if s == nil {
		return nil, nil
	}
	if !slices.Contains(tool.ValidDimensions, roi.Dims()) {
		p.logger.Debug("region rejected by tool", "tool", tool.Name, "dims", roi.Dims())
		return nil, nil
	}

	var (
		result *alignment.Result
		err    error
	)
	switch tool.Method {
	case FreeForm:
		result, err = p.engine.Align(roi, s)
	case AlongVertical:
		result, err = p.engine.AlignAlongAxis(roi, s, alignment.Vertical)
	case AlongHorizontal:
		result, err = p.engine.AlignAlongAxis(roi, s, alignment.Horizontal)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", tool.Name, err)
	}
	if result != nil {
		p.host.Show(result.Aligned)
	}
	return result, nil
}

// ManualAlign opens a manual alignment session on s, or on the selected
// stack when s is nil. Without a stack, nothing happens and (nil, nil) is
// returned.
func (p *Plugin) ManualAlign(s *stack.Stack) (*manual.Tracker, error) {
	if s == nil {
		s = p.host.SelectedStack()
	}
	if s == nil {
		return nil, nil
	}
	if !p.filter(s) {
		return nil, fmt.Errorf("manual align: %w", manual.ErrNotImage)
	}
	tr, err := manual.New(s, p.logger)
	if err != nil {
		return nil, err
	}
	tr.SetFillValue(p.fill)
	return tr, nil
}
