package probe_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/mock/gomock"

	"cmpbridge/internal/consent/host/memory"
	"cmpbridge/internal/consent/ports"
	"cmpbridge/internal/platform/metrics"
	"cmpbridge/internal/probe"
	"cmpbridge/internal/probe/mocks"
	dErrors "cmpbridge/pkg/domain-errors"
	"cmpbridge/pkg/platform/circuit"
)

const pageURL = "https://publisher.example/article"

type ProbeSuite struct {
	suite.Suite
	ctrl    *gomock.Controller
	browser *mocks.MockBrowser
	page    *mocks.MockPage
	mem     *memory.Page
	spans   *tracetest.SpanRecorder
	metrics *metrics.Metrics
	service *probe.Service
}

func TestProbeSuite(t *testing.T) {
	suite.Run(t, new(ProbeSuite))
}

func (s *ProbeSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.browser = mocks.NewMockBrowser(s.ctrl)
	s.page = mocks.NewMockPage(s.ctrl)
	s.mem = memory.NewPage()
	s.spans = tracetest.NewSpanRecorder()
	s.metrics = metrics.New(prometheus.NewRegistry())

	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(s.spans))
	s.service = probe.New(s.browser,
		probe.WithTracer(tp.Tracer("test")),
		probe.WithMetrics(s.metrics),
		probe.WithTimeout(50*time.Millisecond),
		probe.WithBreaker(circuit.New("browser", circuit.WithFailureThreshold(1), circuit.WithCooldown(time.Hour))),
	)
}

// installCMPs answers TCF v2 and USP synchronously; there is no TCF v1 CMP.
func (s *ProbeSuite) installCMPs() {
	s.mem.Top().SetGlobal("__tcfapi", func(args ...any) {
		if args[0] == "getTCData" {
			args[2].(ports.Callback)(map[string]any{"tcString": "not-a-tc-string", "gdprApplies": true}, true)
		}
	})
	s.mem.Top().SetGlobal("__uspapi", func(args ...any) {
		args[2].(ports.Callback)(map[string]any{"uspString": "1YNN"}, true)
	})
}

func (s *ProbeSuite) expectPage() {
	s.browser.EXPECT().Open(gomock.Any(), pageURL).Return(s.page, nil)
	s.page.EXPECT().Host().Return(s.mem.Top().Host()).AnyTimes()
	s.page.EXPECT().Close().Return(nil)
}

func (s *ProbeSuite) TestProbeReportsEveryRegime() {
	s.installCMPs()
	s.expectPage()

	report, err := s.service.Probe(context.Background(), probe.Request{URL: pageURL})
	s.Require().NoError(err)
	s.Require().Len(report.Results, 3)

	gdpr, tcf, usp := report.Results[0], report.Results[1], report.Results[2]

	s.Equal("gdpr", gdpr.Regime)
	s.False(gdpr.Obtained)
	s.Equal("", gdpr.Consent.ConsentString)
	s.Nil(gdpr.Decoded)

	s.Equal("tcfv2", tcf.Regime)
	s.True(tcf.Obtained)
	s.True(tcf.Consent.Applies)
	s.Equal("tcfv2.window", tcf.Source)
	s.Require().NotNil(tcf.Decoded)
	s.NotEmpty(tcf.Decoded.Error)

	s.Equal("usp", usp.Regime)
	s.True(usp.Obtained)
	s.Require().NotNil(usp.Decoded)
	s.Require().NotNil(usp.Decoded.USP)
	s.True(usp.Decoded.USP.OptedOutOfSales)
	s.NotEqual(tcf.CallID, usp.CallID)

	s.True(report.Obtained())
	s.Equal(pageURL, report.URL)
	s.Equal(1, testutil.CollectAndCount(s.metrics.ProbeDuration))
}

func (s *ProbeSuite) TestProbeRecordsSpans() {
	s.installCMPs()
	s.expectPage()

	_, err := s.service.Probe(context.Background(), probe.Request{URL: pageURL, Regimes: []string{"usp", "tcfv2"}})
	s.Require().NoError(err)

	names := map[string]int{}
	for _, span := range s.spans.Ended() {
		names[span.Name()]++
	}
	s.Equal(1, names["probe.run"])
	s.Equal(2, names["probe.regime"])
}

func (s *ProbeSuite) TestProbeWithoutCMPIsNotAnError() {
	s.expectPage()

	report, err := s.service.Probe(context.Background(), probe.Request{URL: pageURL, Regimes: []string{"usp"}})
	s.Require().NoError(err)
	s.False(report.Obtained())
	s.Equal(float64(1), report.Results[0].Consent.Version)
}

func (s *ProbeSuite) TestInvalidRequests() {
	tests := []struct {
		name string
		req  probe.Request
	}{
		{"missing url", probe.Request{}},
		{"relative url", probe.Request{URL: "/article"}},
		{"unsupported scheme", probe.Request{URL: "ftp://publisher.example"}},
		{"unknown regime", probe.Request{URL: pageURL, Regimes: []string{"lgpd"}}},
		{"negative timeout", probe.Request{URL: pageURL, Timeout: -time.Second}},
		{"timeout too long", probe.Request{URL: pageURL, Timeout: time.Hour}},
	}
	for _, tt := range tests {
		s.Run(tt.name, func() {
			_, err := s.service.Probe(context.Background(), tt.req)
			s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput), err)
		})
	}
}

func (s *ProbeSuite) TestOpenFailureTripsBreaker() {
	s.browser.EXPECT().Open(gomock.Any(), pageURL).Return(nil, errors.New("net::ERR_NAME_NOT_RESOLVED")).Times(1)

	_, err := s.service.Probe(context.Background(), probe.Request{URL: pageURL})
	s.True(dErrors.HasCode(err, dErrors.CodeUnavailable))

	// Breaker is open: the browser is not touched again.
	_, err = s.service.Probe(context.Background(), probe.Request{URL: pageURL})
	s.True(dErrors.HasCode(err, dErrors.CodeUnavailable))
}

func (s *ProbeSuite) TestCallerDeadlineAbandonsWait() {
	closed := make(chan struct{})
	s.browser.EXPECT().Open(gomock.Any(), pageURL).Return(s.page, nil)
	s.page.EXPECT().Host().Return(s.mem.Top().Host()).AnyTimes()
	s.page.EXPECT().Close().DoAndReturn(func() error {
		close(closed)
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := s.service.Probe(ctx, probe.Request{URL: pageURL, Regimes: []string{"gdpr"}, Timeout: 200 * time.Millisecond})
	s.True(dErrors.HasCode(err, dErrors.CodeTimeout))

	// The shared run still finishes and closes the page.
	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		s.Fail("page was not closed")
	}
}

func (s *ProbeSuite) TestRegimes() {
	defs := s.service.Regimes()
	s.Require().Len(defs, 3)
	s.Equal("gdpr", defs[0].Name)
}
