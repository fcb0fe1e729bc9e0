package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/wippyai/wasm-post/binding"
	"github.com/wippyai/wasm-post/module"
	"github.com/wippyai/wasm-post/wasm"
)

func newInspectCmd(a *app) *cobra.Command {
	var (
		interactive bool
		output      string
	)
	cmd := &cobra.Command{
		Use:   "inspect [flags] <file.wasm>",
		Short: "List a module's entities and their bindings",
		Long: `List every function, table, memory and global with its binding.
With -i the bindings can be edited and passes applied before saving.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read file: %w", err)
			}
			ctx, err := wasm.Decode(data)
			if err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}
			if interactive {
				if output == "" {
					output = args[0]
				}
				return runInteractive(a, args[0], output, ctx)
			}
			renderInspect(cmd.OutOrStdout(), newStyles(a.renderer), args[0], ctx)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&interactive, "interactive", "i", false, "edit bindings in a terminal UI")
	cmd.Flags().StringVarP(&output, "output", "o", "", "where the interactive editor saves (default: the input file)")
	return cmd
}

type styles struct {
	title    lipgloss.Style
	header   lipgloss.Style
	exported lipgloss.Style
	imported lipgloss.Style
	unbound  lipgloss.Style
	typ      lipgloss.Style
	selected lipgloss.Style
	result   lipgloss.Style
	failure  lipgloss.Style
	help     lipgloss.Style
}

func newStyles(r *lipgloss.Renderer) styles {
	return styles{
		title: r.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1),
		header:   r.NewStyle().Bold(true),
		exported: r.NewStyle().Foreground(lipgloss.Color("#98FB98")),
		imported: r.NewStyle().Foreground(lipgloss.Color("#87CEEB")),
		unbound:  r.NewStyle().Foreground(lipgloss.Color("#666666")),
		typ:      r.NewStyle().Foreground(lipgloss.Color("#87CEEB")),
		selected: r.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")),
		result:  r.NewStyle().Foreground(lipgloss.Color("#90EE90")),
		failure: r.NewStyle().Foreground(lipgloss.Color("#FF6B6B")),
		help:    r.NewStyle().Foreground(lipgloss.Color("#666666")),
	}
}

func (s styles) binding(b binding.Binding) string {
	switch b.State {
	case binding.StateExported:
		return s.exported.Render(b.String())
	case binding.StateImported:
		return s.imported.Render(b.String())
	default:
		return s.unbound.Render(b.String())
	}
}

// entityRow is one line of the entity listing.
type entityRow struct {
	ref  module.EntityRef
	desc string
}

func entityRows(ctx *module.Context) []entityRow {
	var rows []entityRow
	for i, f := range ctx.Functions.All() {
		desc := "type " + strconv.FormatUint(uint64(f.TypeIndex), 10)
		if int(f.TypeIndex) < len(ctx.Types) {
			desc += " " + ctx.Types[f.TypeIndex].String()
		}
		rows = append(rows, entityRow{ref: module.EntityRef{Kind: module.KindFunction, Index: i}, desc: desc})
	}
	for i, t := range ctx.Tables.All() {
		rows = append(rows, entityRow{ref: module.EntityRef{Kind: module.KindTable, Index: i}, desc: t.ElemType.String() + " " + t.Limits.String()})
	}
	for i, m := range ctx.Memories.All() {
		rows = append(rows, entityRow{ref: module.EntityRef{Kind: module.KindMemory, Index: i}, desc: m.Limits.String()})
	}
	for i, g := range ctx.Globals.All() {
		desc := g.Type.ValType.String()
		if g.Type.Mutable {
			desc = "mut " + desc
		}
		rows = append(rows, entityRow{ref: module.EntityRef{Kind: module.KindGlobal, Index: i}, desc: desc})
	}
	return rows
}

func renderInspect(w io.Writer, s styles, file string, ctx *module.Context) {
	fmt.Fprintf(w, "%s %s\n\n", s.title.Render("Module"), file)

	rows := entityRows(ctx)
	kindW, descW := len("ENTITY"), len("TYPE")
	for _, r := range rows {
		kindW = max(kindW, len(r.ref.String()))
		descW = max(descW, len(r.desc))
	}
	cell := func(text string, width int) string {
		return text + strings.Repeat(" ", width-lipgloss.Width(text)+2)
	}

	fmt.Fprintln(w, s.header.Render(cell("ENTITY", kindW)+cell("TYPE", descW)+"BINDING"))
	for _, r := range rows {
		e, _ := ctx.Entity(r.ref)
		fmt.Fprintln(w, cell(r.ref.String(), kindW)+cell(s.typ.Render(r.desc), descW)+s.binding(e.Binding()))
	}
	if len(rows) == 0 {
		fmt.Fprintln(w, s.unbound.Render("(no entities)"))
	}

	if ctx.Start != nil {
		fmt.Fprintf(w, "\nstart: function %d\n", *ctx.Start)
	}
	if len(ctx.Passthrough) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, s.header.Render("CARRIED SECTIONS"))
		for _, r := range ctx.Passthrough {
			name := wasm.SectionName(r.ID)
			if r.ID == wasm.SectionCustom {
				name += " " + strconv.Quote(r.Name)
			}
			fmt.Fprintf(w, "%s (%d bytes)\n", name, len(r.Payload))
		}
	}
}
