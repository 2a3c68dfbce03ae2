// internal/api/handler/web/dashboard.go
package web

import (
	"html/template"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/newthinker/scalper/internal/config"
	"github.com/newthinker/scalper/internal/core"
)

const (
	chartWidth  = 600.0
	chartHeight = 200.0
)

// IntervalOption is one entry of the refresh rate selector.
type IntervalOption struct {
	Seconds  int
	Selected bool
}

// Chart is a pre-computed SVG polyline of recent closes.
type Chart struct {
	Points string
	Min    string
	Max    string
	Width  float64
	Height float64
}

// LiveData is the fragment refreshed on every snapshot.
type LiveData struct {
	Snapshot     core.Snapshot
	Chart        Chart
	Records      []core.SignalRecord
	DisplayLimit int
}

// DashboardData holds data for the dashboard template
type DashboardData struct {
	Title     string
	Live      LiveData
	Pairs     []core.Pair
	Selected  string
	Intervals []IntervalOption
	Error     string
}

var funcs = template.FuncMap{
	"signalClass": signalClass,
	"signalLabel": func(s core.Signal) string { return s.Label() },
}

// signalClass colors BUY green, SELL red and anything else gray.
func signalClass(s core.Signal) string {
	switch s {
	case core.SignalBuy:
		return "text-green-600"
	case core.SignalSell:
		return "text-red-600"
	default:
		return "text-gray-500"
	}
}

// Dashboard renders the dashboard page
func (h *Handler) Dashboard(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	live := h.liveData()
	data := DashboardData{
		Title:     "Live Scalper: " + live.Snapshot.Pair.Label,
		Live:      live,
		Pairs:     h.sess.Pairs(),
		Selected:  live.Snapshot.Pair.Label,
		Intervals: intervalOptions(h.ctrl.Interval()),
		Error:     r.URL.Query().Get("error"),
	}

	h.render(w, "dashboard.html", data)
}

// Live renders only the live fragment; the page swaps it in on each push.
func (h *Handler) Live(w http.ResponseWriter, r *http.Request) {
	h.renderPartial(w, "live.html", "live", h.liveData())
}

// SelectPair handles the pair selector form.
func (h *Handler) SelectPair(w http.ResponseWriter, r *http.Request) {
	if _, err := h.ctrl.SelectPair(r.FormValue("pair")); err != nil {
		redirectWithError(w, r, "Unknown currency pair")
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// SetInterval handles the refresh rate form.
func (h *Handler) SetInterval(w http.ResponseWriter, r *http.Request) {
	secs, err := strconv.Atoi(r.FormValue("seconds"))
	if err != nil {
		redirectWithError(w, r, "Refresh rate must be a number of seconds")
		return
	}
	if err := h.ctrl.SetInterval(time.Duration(secs) * time.Second); err != nil {
		redirectWithError(w, r, "Refresh rate must be between 30 and 120 seconds")
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// Clear handles the clear trade log button.
func (h *Handler) Clear(w http.ResponseWriter, r *http.Request) {
	h.sess.Clear(r.Context())
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (h *Handler) liveData() LiveData {
	snap := h.sess.Snapshot()
	return LiveData{
		Snapshot:     snap,
		Chart:        buildChart(snap.Closes, chartWidth, chartHeight),
		Records:      snap.History,
		DisplayLimit: h.sess.DisplayLimit(),
	}
}

func redirectWithError(w http.ResponseWriter, r *http.Request, msg string) {
	http.Redirect(w, r, "/?error="+url.QueryEscape(msg), http.StatusSeeOther)
}

func intervalOptions(current time.Duration) []IntervalOption {
	lo := int(config.MinRefreshInterval.Seconds())
	hi := int(config.MaxRefreshInterval.Seconds())
	cur := int(current.Seconds())

	var opts []IntervalOption
	seen := false
	for s := lo; s <= hi; s += 10 {
		opts = append(opts, IntervalOption{Seconds: s, Selected: s == cur})
		seen = seen || s == cur
	}
	if !seen && cur >= lo && cur <= hi {
		opts = append(opts, IntervalOption{Seconds: cur, Selected: true})
	}
	return opts
}

// buildChart scales closes into an SVG polyline. A flat series is drawn
// across the middle.
func buildChart(closes []float64, width, height float64) Chart {
	c := Chart{Width: width, Height: height}
	if len(closes) == 0 {
		return c
	}

	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range closes {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	c.Min = core.FormatPrice(lo)
	c.Max = core.FormatPrice(hi)

	step := 0.0
	if len(closes) > 1 {
		step = width / float64(len(closes)-1)
	}

	var b strings.Builder
	for i, v := range closes {
		y := height / 2
		if hi > lo {
			y = height - (v-lo)/(hi-lo)*height
		}
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(strconv.FormatFloat(float64(i)*step, 'f', 1, 64))
		b.WriteByte(',')
		b.WriteString(strconv.FormatFloat(y, 'f', 1, 64))
	}
	c.Points = b.String()
	return c
}
