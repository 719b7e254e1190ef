// Package review records the issuer's decision on a verified credential request. Approval issues the
// credential and attaches its reference to the request.
package review

import (
	"context"
	"fmt"

	sdkutil "github.com/TBD54566975/ssi-sdk/util"
	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/tbd54566975/ssi-vc-service/internal/credential"
	"github.com/tbd54566975/ssi-vc-service/internal/msgvec"
	"github.com/tbd54566975/ssi-vc-service/pkg/service/framework"
	"github.com/tbd54566975/ssi-vc-service/pkg/service/issuance"
	"github.com/tbd54566975/ssi-vc-service/pkg/service/request"
	"github.com/tbd54566975/ssi-vc-service/pkg/storage"
)

type Service struct {
	db       storage.ServiceStorage
	requests *request.Service
	issuance *issuance.Service
	clock    clock.Clock
}

func (s *Service) Type() framework.Type {
	return framework.Review
}

func (s *Service) Status() framework.Status {
	ae := sdkutil.NewAppendError()
	if s.db == nil {
		ae.AppendString("no storage configured")
	}
	if s.requests == nil {
		ae.AppendString("no request service configured")
	}
	if s.issuance == nil {
		ae.AppendString("no issuance service configured")
	}
	if !ae.IsEmpty() {
		return framework.Status{
			Status:  framework.StatusNotReady,
			Message: fmt.Sprintf("review service is not ready: %s", ae.Error().Error()),
		}
	}
	return framework.Status{Status: framework.StatusReady}
}

func NewReviewService(db storage.ServiceStorage, requests *request.Service, i *issuance.Service, c clock.Clock) (*Service, error) {
	if c == nil {
		c = clock.New()
	}
	service := Service{db: db, requests: requests, issuance: i, clock: c}
	if !service.Status().IsReady() {
		return nil, errors.New(service.Status().Message)
	}
	return &service, nil
}

// Review approves or rejects a verified request. The request lock is held from the status check until the
// decision is written, so a concurrent review of the same request waits and then fails with InvalidState.
func (s *Service) Review(ctx context.Context, req ReviewRequest) (*ReviewResponse, error) {
	logrus.Debugf("reviewing request<%s>, approved: %t", req.ID, req.Approved)

	unlock := s.requests.Lock(req.ID)
	defer unlock()

	current, err := s.requests.Get(ctx, request.GetRequest{ID: req.ID})
	if err != nil {
		return nil, err
	}
	if current.Status != request.StatusVerified {
		return nil, framework.NewErrorf(framework.CodeInvalidState, "request<%s> is %s", current.ID, current.Status)
	}

	metadata := request.ReviewMetadata{
		Reviewer:   req.Reviewer,
		Reason:     req.Reason,
		ReviewedAt: credential.FormatTime(s.clock.Now()),
	}
	next := request.StatusRejected
	var issued *issuance.IssueResponse
	if req.Approved {
		next = request.StatusApproved
		issued, err = s.issuance.Issue(ctx, issuance.IssueRequest{
			CredentialType: current.CredentialType,
			Subject:        subjectFor(current, req.Subject),
			Artifact:       req.Artifact,
		})
		if err != nil {
			return nil, err
		}
		metadata.CredentialID = issued.Credential.ID
		metadata.CredentialRef = issued.CredentialRef
		metadata.DocumentHash = issued.DocumentHash
		metadata.Anchored = issued.Anchored
		metadata.Degraded = issued.Degraded
	}

	result, err := s.db.Execute(ctx, func(ctx context.Context, tx storage.Tx) (any, error) {
		return request.ApplyTransition(ctx, tx, request.TransitionRequest{
			ID:     req.ID,
			Status: next,
			Apply: func(r *request.CredentialRequest) error {
				r.Review = &metadata
				return nil
			},
		})
	}, []storage.WatchKey{request.WatchKey(req.ID)})
	if err != nil {
		if issued != nil {
			logrus.WithError(err).Errorf("credential<%s> was issued but request<%s> could not be updated", issued.Credential.ID, req.ID)
		}
		return nil, err
	}
	return &ReviewResponse{Request: result.(*request.CredentialRequest), Issued: issued}, nil
}

// subjectFor fills in the subject attributes the reviewer did not supply. The holder's DID is always the
// subject id. An academic certificate backed by a student id takes the name from it when the request has
// none.
func subjectFor(r *request.CredentialRequest, supplied map[string]any) map[string]any {
	subject := make(map[string]any, len(supplied)+2)
	for k, v := range supplied {
		subject[k] = v
	}
	setDefault(subject, msgvec.FieldSubjectID, r.HolderDID)
	setDefault(subject, "name", r.HolderName)

	if r.CredentialType == msgvec.AcademicCertificate && r.PriorCredential != nil {
		prior := priorSubject(r.PriorCredential.Data)
		setDefault(subject, "name", prior["name"])
	}
	return subject
}

// priorSubject accepts either a full credential or just its subject.
func priorSubject(data map[string]any) map[string]any {
	if nested, ok := data["credentialSubject"].(map[string]any); ok {
		return nested
	}
	return data
}

func setDefault(subject map[string]any, field string, value any) {
	if existing, ok := subject[field]; ok && existing != nil && existing != "" {
		return
	}
	if value == nil || value == "" {
		return
	}
	subject[field] = value
}
