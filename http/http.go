package http

import (
	"context"
	"errors"
	"html/template"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/chzchzchz/rtlstream/tuner"
)

// SessionInfo is satisfied by *tuner.Session.
type SessionInfo interface {
	Info() tuner.Info
}

type indexHandler struct {
	s    SessionInfo
	tmpl *template.Template
}

const indexTmplStr = `<!DOCTYPE html>
<html>
<head>
<title>rtlstream</title>
<style>
table, th, td {
  border: 1px solid black;
  text-align: right;
}
</style>
</head>
<body>
<h1>rtlstream</h1>
<hr/>

<h2>Tuner status &#x1F4FB;</h2>
<ul>
<li>Device: {{.Device}} ({{.State}})</li>
<li>Center frequency: {{printf "%.3f" (mhz .Config.CenterHz)}}MHz</li>
<li>Sample rate: {{.Config.SampleRate}}Hz</li>
<li>Frequency correction: {{.Config.PPM}}ppm</li>
<li>Buffer: {{.BufferSamples}} samples</li>
<li>Buffers read: {{.Buffers}}</li>
</ul>

{{$length := len .Gains}} {{if gt $length 0}}
<h2>Tuner gains</h2>
<table>
<tr><th>dB</th></tr>
{{range $_, $g := .Gains}}
<tr><td>{{printf "%.1f" (db $g)}}</td></tr>
{{end}}
</table>
{{end}}

<p><a href="/metrics">metrics</a> &middot; <a href="/api/session/">json</a></p>
</body>
</html>
`

var tmplFuncs = template.FuncMap{
	"mhz": func(hz uint32) float64 { return float64(hz) / 1e6 },
	"db":  func(tenths int) float64 { return float64(tenths) / 10.0 },
}

func (h *indexHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := h.tmpl.Execute(w, h.s.Info()); err != nil {
		io.WriteString(w, err.Error())
	}
}

// NewHandler serves the status page, /api/session/ and /metrics.
func NewHandler(s SessionInfo, g prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/api/session/", http.StripPrefix("/api/session", newSessionHandler(s)))
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	mux.Handle("/", &indexHandler{
		s:    s,
		tmpl: template.Must(template.New("index").Funcs(tmplFuncs).Parse(indexTmplStr)),
	})
	return mux
}

// ServeHttp listens on serv until ctx is done.
func ServeHttp(ctx context.Context, h http.Handler, serv string) error {
	ln, err := net.Listen("tcp", serv)
	if err != nil {
		return err
	}
	return Serve(ctx, h, ln)
}

func Serve(ctx context.Context, h http.Handler, ln net.Listener) error {
	srv := &http.Server{Handler: h, ReadHeaderTimeout: 5 * time.Second}
	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(ln) }()
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	sctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := srv.Shutdown(sctx)
	if serr := <-errc; !errors.Is(serr, http.ErrServerClosed) && err == nil {
		err = serr
	}
	return err
}
