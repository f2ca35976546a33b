// Package render draws derived storefront views for the terminal.
package render

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/aluiziolira/go-plant-storefront/boundary"
	"github.com/aluiziolira/go-plant-storefront/filter"
	"github.com/aluiziolira/go-plant-storefront/models"
)

// Theme holds the colors used by the renderer.
type Theme struct {
	Accent  string
	Muted   string
	Success string
	Warning string
	Danger  string
	Border  string
}

// DefaultTheme is a green palette that reads on dark and light terminals.
func DefaultTheme() Theme {
	return Theme{
		Accent:  "#5FAF5F",
		Muted:   "#8A8A8A",
		Success: "#87D787",
		Warning: "#D7AF5F",
		Danger:  "#D75F5F",
		Border:  "#4E4E4E",
	}
}

type styles struct {
	title   lipgloss.Style
	muted   lipgloss.Style
	header  lipgloss.Style
	sale    lipgloss.Style
	out     lipgloss.Style
	border  lipgloss.Style
	danger  lipgloss.Style
	fallbox lipgloss.Style
}

func (t Theme) styles() styles {
	return styles{
		title:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(t.Accent)),
		muted:  lipgloss.NewStyle().Foreground(lipgloss.Color(t.Muted)),
		header: lipgloss.NewStyle().Bold(true).Padding(0, 1),
		sale:   lipgloss.NewStyle().Foreground(lipgloss.Color(t.Warning)),
		out:    lipgloss.NewStyle().Foreground(lipgloss.Color(t.Danger)),
		border: lipgloss.NewStyle().Foreground(lipgloss.Color(t.Border)),
		danger: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(t.Danger)),
		fallbox: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color(t.Danger)).
			Padding(0, 1),
	}
}

// Options controls a rendered view.
type Options struct {
	Theme Theme
	// Limit caps the number of table rows; 0 shows every product.
	Limit int
	// Histogram appends the price bucket counts below the table.
	Histogram bool
}

// View renders the listing summary and product table for result.
func View(result filter.Result, f models.FilterState, key models.SortKey, opts Options) string {
	if opts.Theme == (Theme{}) {
		opts.Theme = DefaultTheme()
	}
	st := opts.Theme.styles()

	var b strings.Builder
	summary := fmt.Sprintf("Showing %d of %d plants", result.Stats.Filtered, result.Stats.Total)
	b.WriteString(st.title.Render(summary))
	b.WriteString(st.muted.Render(fmt.Sprintf("  sort: %s  filters: %d", key, f.ActiveCount())))
	b.WriteString("\n")

	if len(result.Sorted) == 0 {
		b.WriteString(st.muted.Render("No plants match these filters."))
		b.WriteString("\n")
	} else {
		b.WriteString(productTable(result.Sorted, opts.Limit, st))
		b.WriteString("\n")
		if opts.Limit > 0 && len(result.Sorted) > opts.Limit {
			b.WriteString(st.muted.Render(fmt.Sprintf("… %d more", len(result.Sorted)-opts.Limit)))
			b.WriteString("\n")
		}
	}

	if opts.Histogram {
		b.WriteString(histogram(result.Stats, st))
	}
	return b.String()
}

func productTable(products []models.Product, limit int, st styles) string {
	if limit > 0 && len(products) > limit {
		products = products[:limit]
	}

	rows := make([][]string, 0, len(products))
	for _, p := range products {
		rows = append(rows, []string{
			p.Name,
			p.Category,
			price(p),
			strconv.FormatFloat(p.Rating, 'f', 1, 64),
			stock(p),
			p.CareLevel,
			p.Size,
		})
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(st.border).
		Headers("NAME", "CATEGORY", "PRICE", "RATING", "STOCK", "CARE", "SIZE").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return st.header
			}
			cell := lipgloss.NewStyle().Padding(0, 1)
			if row < 0 || row >= len(products) {
				return cell
			}
			switch {
			case col == 2 && products[row].OnSale():
				return st.sale.Padding(0, 1)
			case col == 4 && !products[row].InStock():
				return st.out.Padding(0, 1)
			}
			return cell
		})
	return t.Render()
}

func price(p models.Product) string {
	if !p.OnSale() {
		return fmt.Sprintf("₹%.0f", p.Price)
	}
	return fmt.Sprintf("₹%.0f (-%s%%)", p.Price, strconv.FormatFloat(p.Discount, 'f', -1, 64))
}

func stock(p models.Product) string {
	if !p.InStock() {
		return "out"
	}
	return strconv.Itoa(p.Stock)
}

func histogram(stats filter.Stats, st styles) string {
	largest := 0
	for _, label := range filter.PriceBuckets {
		largest = max(largest, stats.PriceBuckets[label])
	}

	var b strings.Builder
	b.WriteString(st.title.Render("Price range"))
	b.WriteString("\n")
	for _, label := range filter.PriceBuckets {
		count := stats.PriceBuckets[label]
		bar := 0
		if largest > 0 {
			bar = count * 20 / largest
		}
		fmt.Fprintf(&b, "%-14s %s %d\n", label, strings.Repeat("█", bar), count)
	}
	if len(stats.Categories) > 0 {
		b.WriteString(st.muted.Render("Categories: " + strings.Join(stats.Categories, ", ")))
		b.WriteString("\n")
	}
	return b.String()
}

// Fallback renders the error boundary's replacement view.
func Fallback(fb boundary.Fallback, theme Theme) string {
	if !fb.Faulted {
		return ""
	}
	if theme == (Theme{}) {
		theme = DefaultTheme()
	}
	st := theme.styles()

	body := strings.Join([]string{
		st.danger.Render(fb.Title),
		fb.Message,
		st.muted.Render("Error ID: " + fb.ErrorID),
		st.muted.Render("Actions: " + strings.Join(fb.Actions, " · ")),
	}, "\n")
	return st.fallbox.Render(body)
}
