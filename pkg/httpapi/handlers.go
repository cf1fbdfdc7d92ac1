package httpapi

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"agrichain/pkg/certification"
	"agrichain/pkg/contract"
	"agrichain/pkg/ledger"
	"agrichain/pkg/logistics"
)

func (s *Server) registerFarm(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		FarmID   string `json:"farm-id"`
		Name     string `json:"name"`
		Location string `json:"location"`
	}
	if !s.decode(w, r, &payload) {
		return
	}
	tx, ok := s.tx(w, r)
	if !ok {
		return
	}
	if err := s.farms.RegisterFarm(r.Context(), tx, payload.FarmID, payload.Name, payload.Location); err != nil {
		s.fail(w, "farm registration failed", err, zap.String("farm-id", payload.FarmID))
		return
	}
	respondWritten(w, http.StatusCreated, tx)
}

func (s *Server) listFarms(w http.ResponseWriter, r *http.Request) {
	if raw := r.URL.Query().Get("owner"); raw != "" {
		owner, err := ledger.ParsePrincipal(raw)
		if err != nil {
			s.respondError(w, err)
			return
		}
		farms, err := s.farms.ListFarmsByOwner(r.Context(), owner)
		if err != nil {
			s.fail(w, "farm listing failed", err)
			return
		}
		respondValue(w, farms)
		return
	}
	farms, err := s.farms.ListFarms(r.Context())
	if err != nil {
		s.fail(w, "farm listing failed", err)
		return
	}
	respondValue(w, farms)
}

func (s *Server) getFarm(w http.ResponseWriter, r *http.Request) {
	f, err := s.farms.GetFarmDetails(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.fail(w, "farm lookup failed", err)
		return
	}
	respondValue(w, f)
}

func (s *Server) verifyFarm(w http.ResponseWriter, r *http.Request) {
	s.farmReview(w, r, s.farms.VerifyFarm)
}

func (s *Server) suspendFarm(w http.ResponseWriter, r *http.Request) {
	s.farmReview(w, r, s.farms.SuspendFarm)
}

func (s *Server) farmReview(w http.ResponseWriter, r *http.Request, review func(ctx context.Context, tx ledger.Tx, id string) error) {
	tx, ok := s.tx(w, r)
	if !ok {
		return
	}
	id := mux.Vars(r)["id"]
	if err := review(r.Context(), tx, id); err != nil {
		s.fail(w, "farm review failed", err, zap.String("farm-id", id))
		return
	}
	respondWritten(w, http.StatusOK, tx)
}

func (s *Server) listFarmCertifications(w http.ResponseWriter, r *http.Request) {
	certs, err := s.certs.ListFarmCertifications(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.fail(w, "certification listing failed", err)
		return
	}
	respondValue(w, certs)
}

func (s *Server) issueCertification(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		CertificationID   string `json:"certification-id"`
		FarmID            string `json:"farm-id"`
		CropType          string `json:"crop-type"`
		CertificationType uint64 `json:"certification-type"`
		ExpiryBlocks      uint64 `json:"expiry-blocks"`
	}
	if !s.decode(w, r, &payload) {
		return
	}
	tx, ok := s.tx(w, r)
	if !ok {
		return
	}
	err := s.certs.IssueCertification(r.Context(), tx, payload.CertificationID, payload.FarmID, payload.CropType,
		certification.Type(contract.Enum(payload.CertificationType)), payload.ExpiryBlocks)
	if err != nil {
		s.fail(w, "certification issue failed", err, zap.String("certification-id", payload.CertificationID))
		return
	}
	respondWritten(w, http.StatusCreated, tx)
}

func (s *Server) getCertification(w http.ResponseWriter, r *http.Request) {
	c, err := s.certs.GetCertificationDetails(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.fail(w, "certification lookup failed", err)
		return
	}
	respondValue(w, c)
}

func (s *Server) certificationValid(w http.ResponseWriter, r *http.Request) {
	ok, err := s.certs.IsCertificationValid(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.fail(w, "certification check failed", err)
		return
	}
	respondValue(w, ok)
}

func (s *Server) revokeCertification(w http.ResponseWriter, r *http.Request) {
	tx, ok := s.tx(w, r)
	if !ok {
		return
	}
	id := mux.Vars(r)["id"]
	if err := s.certs.RevokeCertification(r.Context(), tx, id); err != nil {
		s.fail(w, "certification revoke failed", err, zap.String("certification-id", id))
		return
	}
	respondWritten(w, http.StatusOK, tx)
}

type principalPayload struct {
	Principal string `json:"principal"`
}

// rosterChange handles the add and remove endpoints of both rosters.
func (s *Server) rosterChange(w http.ResponseWriter, r *http.Request, raw string, status int, change func(ctx context.Context, tx ledger.Tx, p ledger.Principal) error) {
	tx, ok := s.tx(w, r)
	if !ok {
		return
	}
	p, err := ledger.ParsePrincipal(raw)
	if err != nil {
		s.respondError(w, err)
		return
	}
	if err := change(r.Context(), tx, p); err != nil {
		s.fail(w, "roster change failed", err, zap.String("principal", string(p)))
		return
	}
	respondWritten(w, status, tx)
}

func (s *Server) addCertifier(w http.ResponseWriter, r *http.Request) {
	var payload principalPayload
	if !s.decode(w, r, &payload) {
		return
	}
	s.rosterChange(w, r, payload.Principal, http.StatusCreated, s.certs.AddCertifier)
}

func (s *Server) removeCertifier(w http.ResponseWriter, r *http.Request) {
	s.rosterChange(w, r, mux.Vars(r)["principal"], http.StatusOK, s.certs.RemoveCertifier)
}

func (s *Server) listCertifiers(w http.ResponseWriter, r *http.Request) {
	members, err := s.certs.ListCertifiers(r.Context())
	if err != nil {
		s.fail(w, "certifier listing failed", err)
		return
	}
	respondValue(w, members)
}

func (s *Server) addTester(w http.ResponseWriter, r *http.Request) {
	var payload principalPayload
	if !s.decode(w, r, &payload) {
		return
	}
	s.rosterChange(w, r, payload.Principal, http.StatusCreated, s.quality.AddTester)
}

func (s *Server) removeTester(w http.ResponseWriter, r *http.Request) {
	s.rosterChange(w, r, mux.Vars(r)["principal"], http.StatusOK, s.quality.RemoveTester)
}

func (s *Server) listTesters(w http.ResponseWriter, r *http.Request) {
	members, err := s.quality.ListTesters(r.Context())
	if err != nil {
		s.fail(w, "tester listing failed", err)
		return
	}
	respondValue(w, members)
}

func (s *Server) recordTest(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		TestID     string `json:"test-id"`
		ShipmentID string `json:"shipment-id"`
		TestType   string `json:"test-type"`
		Result     string `json:"result"`
		Passed     bool   `json:"passed"`
		Notes      string `json:"notes"`
	}
	if !s.decode(w, r, &payload) {
		return
	}
	tx, ok := s.tx(w, r)
	if !ok {
		return
	}
	err := s.quality.RecordTest(r.Context(), tx, payload.TestID, payload.ShipmentID, payload.TestType, payload.Result, payload.Passed, payload.Notes)
	if err != nil {
		s.fail(w, "test recording failed", err, zap.String("test-id", payload.TestID))
		return
	}
	respondWritten(w, http.StatusCreated, tx)
}

func (s *Server) getTest(w http.ResponseWriter, r *http.Request) {
	t, err := s.quality.GetTestDetails(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.fail(w, "test lookup failed", err)
		return
	}
	respondValue(w, t)
}

func (s *Server) createShipment(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		ShipmentID  string `json:"shipment-id"`
		FarmID      string `json:"farm-id"`
		CropType    string `json:"crop-type"`
		Quantity    uint64 `json:"quantity"`
		Origin      string `json:"origin"`
		Destination string `json:"destination"`
	}
	if !s.decode(w, r, &payload) {
		return
	}
	tx, ok := s.tx(w, r)
	if !ok {
		return
	}
	err := s.logistics.CreateShipment(r.Context(), tx, payload.ShipmentID, payload.FarmID, payload.CropType,
		payload.Quantity, payload.Origin, payload.Destination)
	if err != nil {
		s.fail(w, "shipment creation failed", err, zap.String("shipment-id", payload.ShipmentID))
		return
	}
	respondWritten(w, http.StatusCreated, tx)
}

func (s *Server) getShipment(w http.ResponseWriter, r *http.Request) {
	sh, err := s.logistics.GetShipmentDetails(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.fail(w, "shipment lookup failed", err)
		return
	}
	respondValue(w, sh)
}

func (s *Server) updateShipmentStatus(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Status          uint64 `json:"status"`
		CurrentLocation string `json:"current-location"`
	}
	if !s.decode(w, r, &payload) {
		return
	}
	tx, ok := s.tx(w, r)
	if !ok {
		return
	}
	id := mux.Vars(r)["id"]
	status := logistics.Status(contract.Enum(payload.Status))
	if err := s.logistics.UpdateShipmentStatus(r.Context(), tx, id, status, payload.CurrentLocation); err != nil {
		s.fail(w, "shipment update failed", err, zap.String("shipment-id", id), zap.Uint64("status", payload.Status))
		return
	}
	respondWritten(w, http.StatusOK, tx)
}

func (s *Server) shipmentHistory(w http.ResponseWriter, r *http.Request) {
	history, err := s.logistics.GetShipmentHistory(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.fail(w, "shipment history failed", err)
		return
	}
	respondValue(w, history)
}

func (s *Server) shipmentTests(w http.ResponseWriter, r *http.Request) {
	tests, err := s.quality.ListShipmentTests(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.fail(w, "shipment tests failed", err)
		return
	}
	respondValue(w, tests)
}

func (s *Server) shipmentPassed(w http.ResponseWriter, r *http.Request) {
	ok, err := s.quality.ShipmentPassedAllTests(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.fail(w, "shipment test summary failed", err)
		return
	}
	respondValue(w, ok)
}
