package httpapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	. "github.com/onsi/gomega"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"agrichain/internal/testutil"
	"agrichain/pkg/certification"
	"agrichain/pkg/contract"
	"agrichain/pkg/farm"
	"agrichain/pkg/httpapi"
	"agrichain/pkg/ledger"
	"agrichain/pkg/logistics"
	"agrichain/pkg/metrics"
	"agrichain/pkg/quality"
	"agrichain/pkg/storage"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type harness struct {
	handler http.Handler
	clock   *ledger.ManualClock
	logs    *observer.ObservedLogs
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	store := testutil.NewMemoryStore(t)
	clock := testutil.NewClock()
	gov := testutil.Governance()
	m := metrics.New()

	farms := farm.NewService(farm.NewRepository(store), clock, gov, nil)
	shipments := logistics.NewService(logistics.NewRepository(store), farms, clock, gov, nil)
	services := contract.Services{
		Farms:          farms,
		Certifications: certification.NewService(certification.NewRepository(store), farms, clock, gov, nil),
		Quality:        quality.NewService(quality.NewRepository(store), shipments, clock, gov, nil),
		Logistics:      shipments,
	}
	t.Cleanup(func() {
		services.Quality.Close()
		services.Certifications.Close()
		services.Logistics.Close()
		services.Farms.Close()
	})

	core, logs := observer.New(zapcore.DebugLevel)
	srv := httpapi.New(services, nil, clock, gov, m, zap.New(core))
	return &harness{handler: srv.Handler(), clock: clock, logs: logs}
}

type response struct {
	Success bool            `json:"success"`
	Value   json.RawMessage `json:"value"`
	TxID    string          `json:"tx-id"`
	Error   struct {
		Code    uint32 `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (h *harness) do(t *testing.T, method, path string, sender ledger.Principal, body any) (int, response) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if raw, ok := body.(string); ok {
			buf.WriteString(raw)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf).WithContext(context.Background())
	if sender != "" {
		req.Header.Set(httpapi.SenderHeader, string(sender))
	}
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)

	var res response
	if rec.Body.Len() > 0 && rec.Header().Get("Content-Type") == "application/json" {
		if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
			t.Fatalf("decode %s %s: %v: %s", method, path, err, rec.Body.String())
		}
	}
	return rec.Code, res
}

func (h *harness) verifiedFarm(t *testing.T) {
	t.Helper()
	g := NewGomegaWithT(t)
	code, _ := h.do(t, http.MethodPost, "/api/farms", testutil.Farmer, map[string]string{
		"farm-id": testutil.FarmID, "name": testutil.FarmName, "location": testutil.FarmLocation,
	})
	g.Expect(code).To(Equal(http.StatusCreated))
	code, _ = h.do(t, http.MethodPost, "/api/farms/"+testutil.FarmID+"/verify", testutil.Owner, nil)
	g.Expect(code).To(Equal(http.StatusOK))
}

func TestFarmEndpoints(t *testing.T) {
	g := NewGomegaWithT(t)
	h := newHarness(t)

	code, res := h.do(t, http.MethodPost, "/api/farms", testutil.Farmer, map[string]string{
		"farm-id": testutil.FarmID, "name": testutil.FarmName, "location": testutil.FarmLocation,
	})
	g.Expect(code).To(Equal(http.StatusCreated))
	g.Expect(res.Success).To(BeTrue())
	g.Expect(string(res.Value)).To(Equal("true"))
	g.Expect(res.TxID).NotTo(BeEmpty())

	code, res = h.do(t, http.MethodGet, "/api/farms/"+testutil.FarmID, "", nil)
	g.Expect(code).To(Equal(http.StatusOK))
	var f farm.Farm
	g.Expect(json.Unmarshal(res.Value, &f)).To(Succeed())
	g.Expect(f.Owner).To(Equal(testutil.Farmer))
	g.Expect(f.Status).To(Equal(farm.StatusPending))
	g.Expect(f.RegistrationDate).To(Equal(testutil.FixtureHeight))

	code, res = h.do(t, http.MethodPost, "/api/farms/"+testutil.FarmID+"/verify", testutil.Farmer, nil)
	g.Expect(code).To(Equal(http.StatusForbidden))
	g.Expect(res.Success).To(BeFalse())
	g.Expect(res.Error.Code).To(Equal(uint32(100)))

	code, _ = h.do(t, http.MethodPost, "/api/farms/"+testutil.FarmID+"/verify", testutil.Owner, nil)
	g.Expect(code).To(Equal(http.StatusOK))
	code, res = h.do(t, http.MethodPost, "/api/farms/"+testutil.FarmID+"/verify", testutil.Owner, nil)
	g.Expect(code).To(Equal(http.StatusConflict))
	g.Expect(res.Error.Code).To(Equal(uint32(104)))

	code, res = h.do(t, http.MethodGet, "/api/farms?owner="+string(testutil.Farmer), "", nil)
	g.Expect(code).To(Equal(http.StatusOK))
	var farms []farm.Farm
	g.Expect(json.Unmarshal(res.Value, &farms)).To(Succeed())
	g.Expect(farms).To(HaveLen(1))
	g.Expect(farms[0].Status).To(Equal(farm.StatusVerified))

	code, res = h.do(t, http.MethodGet, "/api/farms/nope", "", nil)
	g.Expect(code).To(Equal(http.StatusNotFound))
	g.Expect(res.Error.Code).To(Equal(uint32(102)))
	g.Expect(res.Error.Message).To(Equal("farm not found"))
}

func TestUnsafeInputIsABadRequest(t *testing.T) {
	g := NewGomegaWithT(t)
	h := newHarness(t)

	code, res := h.do(t, http.MethodPost, "/api/farms", testutil.Farmer, map[string]string{
		"farm-id": "farm\x1fx", "name": testutil.FarmName, "location": testutil.FarmLocation,
	})
	g.Expect(code).To(Equal(http.StatusBadRequest))
	g.Expect(res.Error.Code).To(Equal(uint32(103)))

	code, _ = h.do(t, http.MethodGet, "/api/farms/farm%1Fx", "", nil)
	g.Expect(code).To(Equal(http.StatusBadRequest))
	g.Expect(h.logs.FilterLevelExact(zapcore.ErrorLevel).Len()).To(BeZero())

	code, res = h.do(t, http.MethodPost, "/api/tests", testutil.Tester, `{"notes":"`+strings.Repeat("n", 32<<10)+`"}`)
	g.Expect(code).To(Equal(http.StatusRequestEntityTooLarge))
	g.Expect(res.Error.Code).To(Equal(httpapi.ErrBadRequest.Code))
}

func TestSenderHandling(t *testing.T) {
	g := NewGomegaWithT(t)
	h := newHarness(t)
	body := map[string]string{"farm-id": testutil.FarmID, "name": testutil.FarmName, "location": testutil.FarmLocation}

	code, res := h.do(t, http.MethodPost, "/api/farms", "", body)
	g.Expect(code).To(Equal(http.StatusForbidden))
	g.Expect(res.Error.Code).To(Equal(uint32(2)))

	code, res = h.do(t, http.MethodPost, "/api/farms", "mallory", body)
	g.Expect(code).To(Equal(http.StatusBadRequest))
	g.Expect(res.Error.Code).To(Equal(uint32(1)))

	code, res = h.do(t, http.MethodPost, "/api/farms", testutil.Farmer, "{not json")
	g.Expect(code).To(Equal(http.StatusBadRequest))
	g.Expect(res.Error.Code).To(Equal(uint32(7)))
}

func TestSupplyChainEndpoints(t *testing.T) {
	g := NewGomegaWithT(t)
	h := newHarness(t)
	h.verifiedFarm(t)

	code, _ := h.do(t, http.MethodPost, "/api/certifiers", testutil.Owner, map[string]string{"principal": string(testutil.Certifier)})
	g.Expect(code).To(Equal(http.StatusCreated))
	code, _ = h.do(t, http.MethodPost, "/api/certifications", testutil.Certifier, map[string]any{
		"certification-id": testutil.CertificationID, "farm-id": testutil.FarmID, "crop-type": testutil.CropType,
		"certification-type": 1, "expiry-blocks": testutil.OneYearBlocks,
	})
	g.Expect(code).To(Equal(http.StatusCreated))

	code, res := h.do(t, http.MethodGet, "/api/certifications/"+testutil.CertificationID+"/valid", "", nil)
	g.Expect(code).To(Equal(http.StatusOK))
	g.Expect(string(res.Value)).To(Equal("true"))

	code, _ = h.do(t, http.MethodPost, "/api/shipments", testutil.Farmer, map[string]any{
		"shipment-id": testutil.ShipmentID, "farm-id": testutil.FarmID, "crop-type": testutil.CropType,
		"quantity": testutil.Quantity, "origin": testutil.Origin, "destination": testutil.Destination,
	})
	g.Expect(code).To(Equal(http.StatusCreated))

	h.clock.Advance(2)
	code, _ = h.do(t, http.MethodPut, "/api/shipments/"+testutil.ShipmentID+"/status", testutil.Farmer, map[string]any{
		"status": 2, "current-location": testutil.Checkpoint,
	})
	g.Expect(code).To(Equal(http.StatusOK))
	code, res = h.do(t, http.MethodPut, "/api/shipments/"+testutil.ShipmentID+"/status", testutil.Farmer, map[string]any{
		"status": 1, "current-location": testutil.Checkpoint,
	})
	g.Expect(code).To(Equal(http.StatusConflict))
	g.Expect(res.Error.Code).To(Equal(uint32(404)))

	code, res = h.do(t, http.MethodGet, "/api/shipments/"+testutil.ShipmentID+"/history", "", nil)
	g.Expect(code).To(Equal(http.StatusOK))
	var history []logistics.HistoryEntry
	g.Expect(json.Unmarshal(res.Value, &history)).To(Succeed())
	g.Expect(history).To(HaveLen(2))
	g.Expect(history[1].Location).To(Equal(testutil.Checkpoint))
	g.Expect(history[1].BlockHeight).To(Equal(testutil.FixtureHeight + 2))

	code, _ = h.do(t, http.MethodPost, "/api/testers", testutil.Owner, map[string]string{"principal": string(testutil.Tester)})
	g.Expect(code).To(Equal(http.StatusCreated))

	code, res = h.do(t, http.MethodGet, "/api/shipments/"+testutil.ShipmentID+"/passed-all-tests", "", nil)
	g.Expect(code).To(Equal(http.StatusOK))
	g.Expect(string(res.Value)).To(Equal("false"))

	code, _ = h.do(t, http.MethodPost, "/api/tests", testutil.Tester, map[string]any{
		"test-id": testutil.TestID, "shipment-id": testutil.ShipmentID, "test-type": testutil.TestType,
		"result": testutil.TestResult, "passed": true, "notes": testutil.TestNotes,
	})
	g.Expect(code).To(Equal(http.StatusCreated))

	code, res = h.do(t, http.MethodGet, "/api/shipments/"+testutil.ShipmentID+"/passed-all-tests", "", nil)
	g.Expect(code).To(Equal(http.StatusOK))
	g.Expect(string(res.Value)).To(Equal("true"))

	code, res = h.do(t, http.MethodGet, "/api/tests/"+testutil.TestID, "", nil)
	g.Expect(code).To(Equal(http.StatusOK))
	var test quality.Test
	g.Expect(json.Unmarshal(res.Value, &test)).To(Succeed())
	g.Expect(test.Tester).To(Equal(testutil.Tester))

	code, _ = h.do(t, http.MethodDelete, "/api/testers/"+string(testutil.Tester), testutil.Owner, nil)
	g.Expect(code).To(Equal(http.StatusOK))
	code, res = h.do(t, http.MethodDelete, "/api/testers/"+string(testutil.Tester), testutil.Owner, nil)
	g.Expect(code).To(Equal(http.StatusNotFound))
	g.Expect(res.Error.Code).To(Equal(uint32(305)))

	code, _ = h.do(t, http.MethodPost, "/api/certifications/"+testutil.CertificationID+"/revoke", testutil.Owner, nil)
	g.Expect(code).To(Equal(http.StatusOK))
	code, res = h.do(t, http.MethodGet, "/api/certifications/"+testutil.CertificationID+"/valid", "", nil)
	g.Expect(code).To(Equal(http.StatusOK))
	g.Expect(string(res.Value)).To(Equal("false"))
}

func TestGenericInvoke(t *testing.T) {
	g := NewGomegaWithT(t)
	h := newHarness(t)

	code, res := h.do(t, http.MethodPost, "/api/contracts/farm-verification/register-farm", testutil.Farmer, map[string]any{
		"args": []string{testutil.FarmID, testutil.FarmName, testutil.FarmLocation},
	})
	g.Expect(code).To(Equal(http.StatusOK))
	g.Expect(string(res.Value)).To(Equal("true"))

	code, res = h.do(t, http.MethodPost, "/api/contracts/farm-verification/is-farm-verified", "", map[string]any{
		"args": []string{testutil.FarmID},
	})
	g.Expect(code).To(Equal(http.StatusOK))
	g.Expect(string(res.Value)).To(Equal("false"))

	code, res = h.do(t, http.MethodPost, "/api/contracts/farm-verification/verify-farm", testutil.Owner, map[string]any{"args": []string{}})
	g.Expect(code).To(Equal(http.StatusBadRequest))
	g.Expect(res.Error.Message).To(Equal("incorrect number of arguments: expecting 1"))

	code, _ = h.do(t, http.MethodPost, "/api/contracts/unknown/fn", "", map[string]any{"args": []string{}})
	g.Expect(code).To(Equal(http.StatusNotFound))
}

func TestChainHealthAndMetrics(t *testing.T) {
	g := NewGomegaWithT(t)
	h := newHarness(t)

	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/chain", nil))
	g.Expect(rec.Code).To(Equal(http.StatusOK))
	var chain map[string]any
	g.Expect(json.Unmarshal(rec.Body.Bytes(), &chain)).To(Succeed())
	g.Expect(chain).To(HaveKeyWithValue("block-height", BeNumerically("==", testutil.FixtureHeight)))
	g.Expect(chain).To(HaveKeyWithValue("contract-owner", string(testutil.Owner)))

	rec = httptest.NewRecorder()
	h.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	g.Expect(rec.Code).To(Equal(http.StatusOK))
	g.Expect(rec.Body.String()).To(ContainSubstring(`"status":"ok"`))

	rec = httptest.NewRecorder()
	h.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	g.Expect(rec.Code).To(Equal(http.StatusOK))
	g.Expect(rec.Body.String()).To(ContainSubstring(`agrichain_http_requests_total{code="200",method="GET",route="/api/chain"} 1`))

	g.Expect(h.logs.FilterMessage("request served").Len()).To(BeNumerically(">=", 2))
}

func TestStatusFor(t *testing.T) {
	g := NewGomegaWithT(t)
	g.Expect(httpapi.StatusFor(farm.ErrInvalidInput)).To(Equal(http.StatusBadRequest))
	g.Expect(httpapi.StatusFor(farm.ErrUnauthorized)).To(Equal(http.StatusForbidden))
	g.Expect(httpapi.StatusFor(farm.ErrFarmNotFound)).To(Equal(http.StatusNotFound))
	g.Expect(httpapi.StatusFor(farm.ErrFarmExists)).To(Equal(http.StatusConflict))
	g.Expect(httpapi.StatusFor(farm.ErrAlreadyVerified)).To(Equal(http.StatusConflict))
	g.Expect(httpapi.StatusFor(context.DeadlineExceeded)).To(Equal(http.StatusGatewayTimeout))
	g.Expect(httpapi.StatusFor(fmt.Errorf("get farm: %w", storage.ErrInvalidKeyPart))).To(Equal(http.StatusBadRequest))
	g.Expect(httpapi.StatusFor(bytes.ErrTooLarge)).To(Equal(http.StatusInternalServerError))
}
