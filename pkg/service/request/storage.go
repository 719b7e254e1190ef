package request

import (
	"context"
	"sort"

	sdkutil "github.com/TBD54566975/ssi-sdk/util"
	"github.com/goccy/go-json"
	"github.com/pkg/errors"

	"github.com/tbd54566975/ssi-vc-service/pkg/service/framework"
	"github.com/tbd54566975/ssi-vc-service/pkg/storage"
)

// Namespace holds one record per request id.
const Namespace = "credential-request"

type Storage struct {
	db storage.ServiceStorage
}

func NewRequestStorage(db storage.ServiceStorage) (*Storage, error) {
	if db == nil {
		return nil, errors.New("db reference is nil")
	}
	return &Storage{db: db}, nil
}

// WatchKey is the key a transaction touching request id must watch.
func WatchKey(id string) storage.WatchKey {
	return storage.WatchKey{Namespace: Namespace, Key: id}
}

// Load reads a request inside a transaction.
func Load(ctx context.Context, tx storage.Tx, id string) (*CredentialRequest, error) {
	b, err := tx.Read(ctx, Namespace, id)
	if err != nil {
		return nil, errors.Wrapf(err, "reading request<%s>", id)
	}
	if b == nil {
		return nil, framework.NewErrorf(framework.CodeRequestNotFound, "request<%s>", id)
	}
	var r CredentialRequest
	if err = json.Unmarshal(b, &r); err != nil {
		return nil, errors.Wrapf(err, "unmarshalling request<%s>", id)
	}
	return &r, nil
}

// Save writes a request inside a transaction.
func Save(ctx context.Context, tx storage.Tx, r CredentialRequest) error {
	b, err := json.Marshal(r)
	if err != nil {
		return errors.Wrapf(err, "marshalling request<%s>", r.ID)
	}
	return tx.Write(ctx, Namespace, r.ID, b)
}

// ApplyTransition checks the edge from the stored status to req.Status, runs req.Apply and writes the result.
func ApplyTransition(ctx context.Context, tx storage.Tx, req TransitionRequest) (*CredentialRequest, error) {
	r, err := Load(ctx, tx, req.ID)
	if err != nil {
		return nil, err
	}
	if !r.Status.CanTransitionTo(req.Status) {
		return nil, framework.NewErrorf(framework.CodeInvalidTransition, "request<%s> cannot move from %s to %s", r.ID, r.Status, req.Status)
	}
	r.Status = req.Status
	if req.Apply != nil {
		if err = req.Apply(r); err != nil {
			return nil, err
		}
	}
	if err = Save(ctx, tx, *r); err != nil {
		return nil, err
	}
	return r, nil
}

func (rs *Storage) Get(ctx context.Context, id string) (*CredentialRequest, error) {
	b, err := rs.db.Read(ctx, Namespace, id)
	if err != nil {
		return nil, sdkutil.LoggingErrorMsgf(err, "could not get request: %s", id)
	}
	if b == nil {
		return nil, framework.NewErrorf(framework.CodeRequestNotFound, "request<%s>", id)
	}
	var r CredentialRequest
	if err = json.Unmarshal(b, &r); err != nil {
		return nil, sdkutil.LoggingErrorMsgf(err, "could not unmarshal stored request: %s", id)
	}
	return &r, nil
}

// List returns every stored request, oldest first.
func (rs *Storage) List(ctx context.Context) ([]CredentialRequest, error) {
	all, err := rs.db.ReadAll(ctx, Namespace)
	if err != nil {
		return nil, sdkutil.LoggingErrorMsg(err, "could not list requests")
	}
	requests := make([]CredentialRequest, 0, len(all))
	for id, b := range all {
		var r CredentialRequest
		if err = json.Unmarshal(b, &r); err != nil {
			return nil, sdkutil.LoggingErrorMsgf(err, "could not unmarshal stored request: %s", id)
		}
		requests = append(requests, r)
	}
	sort.Slice(requests, func(i, j int) bool {
		if requests[i].CreatedAt != requests[j].CreatedAt {
			return requests[i].CreatedAt < requests[j].CreatedAt
		}
		return requests[i].ID < requests[j].ID
	})
	return requests, nil
}

func (rs *Storage) Execute(ctx context.Context, fn storage.BusinessLogicFunc, id string) (any, error) {
	return rs.db.Execute(ctx, fn, []storage.WatchKey{WatchKey(id)})
}
