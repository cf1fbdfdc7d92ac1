package contract

import (
	"context"
	"math"

	"agrichain/pkg/certification"
	"agrichain/pkg/farm"
	"agrichain/pkg/ledger"
	"agrichain/pkg/logistics"
	"agrichain/pkg/quality"
)

// Services are the contracts a registry dispatches to.
type Services struct {
	Farms          *farm.Service
	Certifications *certification.Service
	Quality        *quality.Service
	Logistics      *logistics.Service
}

// New builds a registry holding the function tables of all four contracts.
func New(s Services) *Registry {
	r := NewRegistry()
	bindFarms(r, s.Farms)
	bindCertifications(r, s.Certifications)
	bindQuality(r, s.Quality)
	bindLogistics(r, s.Logistics)
	return r
}

// Enum narrows a wire integer to an enum value; out of range values become 0,
// which no enum accepts.
func Enum(v uint64) uint8 {
	if v > math.MaxUint8 {
		return 0
	}
	return uint8(v)
}

// byID adapts a single-id read to a Handler.
func byID[T any](read func(context.Context, string) (T, error)) Handler {
	return func(ctx context.Context, _ ledger.Tx, args Args) (any, error) {
		id, err := args.String(0)
		if err != nil {
			return nil, err
		}
		return read(ctx, id)
	}
}

// byPrincipal adapts a single-principal read to a Handler.
func byPrincipal[T any](read func(context.Context, ledger.Principal) (T, error)) Handler {
	return func(ctx context.Context, _ ledger.Tx, args Args) (any, error) {
		p, err := args.Principal(0)
		if err != nil {
			return nil, err
		}
		return read(ctx, p)
	}
}

// idWrite adapts a single-id transaction to a Handler.
func idWrite(write func(context.Context, ledger.Tx, string) error) Handler {
	return func(ctx context.Context, tx ledger.Tx, args Args) (any, error) {
		id, err := args.String(0)
		if err != nil {
			return nil, err
		}
		return nil, write(ctx, tx, id)
	}
}

// principalWrite adapts a roster change to a Handler.
func principalWrite(write func(context.Context, ledger.Tx, ledger.Principal) error) Handler {
	return func(ctx context.Context, tx ledger.Tx, args Args) (any, error) {
		p, err := args.Principal(0)
		if err != nil {
			return nil, err
		}
		return nil, write(ctx, tx, p)
	}
}

func stringArgs(args Args, n int) ([]string, error) {
	out := make([]string, n)
	for i := range out {
		s, err := args.String(i)
		if err != nil {
			return nil, err
		}
		out[i] = s
	}
	return out, nil
}

func bindFarms(r *Registry, s *farm.Service) {
	const c = farm.ContractName
	r.Register(c, Function{Name: "register-farm", Arity: 3, Write: true, Handler: func(ctx context.Context, tx ledger.Tx, args Args) (any, error) {
		v, err := stringArgs(args, 3)
		if err != nil {
			return nil, err
		}
		return nil, s.RegisterFarm(ctx, tx, v[0], v[1], v[2])
	}})
	r.Register(c, Function{Name: "verify-farm", Arity: 1, Write: true, Handler: idWrite(s.VerifyFarm)})
	r.Register(c, Function{Name: "suspend-farm", Arity: 1, Write: true, Handler: idWrite(s.SuspendFarm)})
	r.Register(c, Function{Name: "get-farm-details", Arity: 1, Handler: byID(s.GetFarmDetails)})
	r.Register(c, Function{Name: "is-farm-verified", Arity: 1, Handler: byID(s.IsFarmVerified)})
	r.Register(c, Function{Name: "list-farms", Arity: 0, Handler: func(ctx context.Context, _ ledger.Tx, _ Args) (any, error) {
		return s.ListFarms(ctx)
	}})
	r.Register(c, Function{Name: "list-farms-by-owner", Arity: 1, Handler: byPrincipal(s.ListFarmsByOwner)})
}

func bindCertifications(r *Registry, s *certification.Service) {
	const c = certification.ContractName
	r.Register(c, Function{Name: "issue-certification", Arity: 5, Write: true, Handler: func(ctx context.Context, tx ledger.Tx, args Args) (any, error) {
		v, err := stringArgs(args, 3)
		if err != nil {
			return nil, err
		}
		certType, err := args.Uint(3)
		if err != nil {
			return nil, err
		}
		expiry, err := args.Uint(4)
		if err != nil {
			return nil, err
		}
		return nil, s.IssueCertification(ctx, tx, v[0], v[1], v[2], certification.Type(Enum(certType)), expiry)
	}})
	r.Register(c, Function{Name: "revoke-certification", Arity: 1, Write: true, Handler: idWrite(s.RevokeCertification)})
	r.Register(c, Function{Name: "is-certification-valid", Arity: 1, Handler: byID(s.IsCertificationValid)})
	r.Register(c, Function{Name: "get-certification-details", Arity: 1, Handler: byID(s.GetCertificationDetails)})
	r.Register(c, Function{Name: "list-farm-certifications", Arity: 1, Handler: byID(s.ListFarmCertifications)})
	r.Register(c, Function{Name: "add-certifier", Arity: 1, Write: true, Handler: principalWrite(s.AddCertifier)})
	r.Register(c, Function{Name: "remove-certifier", Arity: 1, Write: true, Handler: principalWrite(s.RemoveCertifier)})
	r.Register(c, Function{Name: "is-certifier", Arity: 1, Handler: byPrincipal(s.IsCertifier)})
	r.Register(c, Function{Name: "list-certifiers", Arity: 0, Handler: func(ctx context.Context, _ ledger.Tx, _ Args) (any, error) {
		return s.ListCertifiers(ctx)
	}})
}

func bindQuality(r *Registry, s *quality.Service) {
	const c = quality.ContractName
	r.Register(c, Function{Name: "add-tester", Arity: 1, Write: true, Handler: principalWrite(s.AddTester)})
	r.Register(c, Function{Name: "remove-tester", Arity: 1, Write: true, Handler: principalWrite(s.RemoveTester)})
	r.Register(c, Function{Name: "is-tester", Arity: 1, Handler: byPrincipal(s.IsTester)})
	r.Register(c, Function{Name: "list-testers", Arity: 0, Handler: func(ctx context.Context, _ ledger.Tx, _ Args) (any, error) {
		return s.ListTesters(ctx)
	}})
	r.Register(c, Function{Name: "record-test", Arity: 6, Write: true, Handler: func(ctx context.Context, tx ledger.Tx, args Args) (any, error) {
		v, err := stringArgs(args, 4)
		if err != nil {
			return nil, err
		}
		passed, err := args.Bool(4)
		if err != nil {
			return nil, err
		}
		notes, err := args.String(5)
		if err != nil {
			return nil, err
		}
		return nil, s.RecordTest(ctx, tx, v[0], v[1], v[2], v[3], passed, notes)
	}})
	r.Register(c, Function{Name: "get-test-details", Arity: 1, Handler: byID(s.GetTestDetails)})
	r.Register(c, Function{Name: "shipment-passed-all-tests", Arity: 1, Handler: byID(s.ShipmentPassedAllTests)})
	r.Register(c, Function{Name: "list-shipment-tests", Arity: 1, Handler: byID(s.ListShipmentTests)})
}

func bindLogistics(r *Registry, s *logistics.Service) {
	const c = logistics.ContractName
	r.Register(c, Function{Name: "create-shipment", Arity: 6, Write: true, Handler: func(ctx context.Context, tx ledger.Tx, args Args) (any, error) {
		v, err := stringArgs(args, 3)
		if err != nil {
			return nil, err
		}
		quantity, err := args.Uint(3)
		if err != nil {
			return nil, err
		}
		origin, err := args.String(4)
		if err != nil {
			return nil, err
		}
		destination, err := args.String(5)
		if err != nil {
			return nil, err
		}
		return nil, s.CreateShipment(ctx, tx, v[0], v[1], v[2], quantity, origin, destination)
	}})
	r.Register(c, Function{Name: "update-shipment-status", Arity: 3, Write: true, Handler: func(ctx context.Context, tx ledger.Tx, args Args) (any, error) {
		id, err := args.String(0)
		if err != nil {
			return nil, err
		}
		status, err := args.Uint(1)
		if err != nil {
			return nil, err
		}
		location, err := args.String(2)
		if err != nil {
			return nil, err
		}
		return nil, s.UpdateShipmentStatus(ctx, tx, id, logistics.Status(Enum(status)), location)
	}})
	r.Register(c, Function{Name: "get-shipment-details", Arity: 1, Handler: byID(s.GetShipmentDetails)})
	r.Register(c, Function{Name: "get-shipment-history", Arity: 1, Handler: byID(s.GetShipmentHistory)})
	r.Register(c, Function{Name: "shipment-exists", Arity: 1, Handler: byID(s.ShipmentExists)})
}
