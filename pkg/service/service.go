package service

import (
	"context"
	"fmt"

	sdkutil "github.com/TBD54566975/ssi-sdk/util"
	"github.com/benbjohnson/clock"

	"github.com/tbd54566975/ssi-vc-service/config"
	"github.com/tbd54566975/ssi-vc-service/pkg/service/blob"
	"github.com/tbd54566975/ssi-vc-service/pkg/service/disclosure"
	"github.com/tbd54566975/ssi-vc-service/pkg/service/framework"
	"github.com/tbd54566975/ssi-vc-service/pkg/service/issuance"
	"github.com/tbd54566975/ssi-vc-service/pkg/service/keystore"
	"github.com/tbd54566975/ssi-vc-service/pkg/service/ledger"
	"github.com/tbd54566975/ssi-vc-service/pkg/service/nonce"
	"github.com/tbd54566975/ssi-vc-service/pkg/service/ownership"
	"github.com/tbd54566975/ssi-vc-service/pkg/service/request"
	"github.com/tbd54566975/ssi-vc-service/pkg/service/review"
	"github.com/tbd54566975/ssi-vc-service/pkg/service/verification"
	"github.com/tbd54566975/ssi-vc-service/pkg/storage"
)

// SSIService represents all services and their dependencies independent of transport
type SSIService struct {
	KeyStore     *keystore.Service
	Blob         *blob.Service
	Ledger       *ledger.Service
	Request      *request.Service
	Nonce        *nonce.Service
	Ownership    *ownership.Service
	Issuance     *issuance.Service
	Review       *review.Service
	Disclosure   *disclosure.Service
	Verification *verification.Service

	storage storage.ServiceStorage
}

// InstantiateSSIService creates a new instance of the SSIS which instantiates all services and their
// dependencies independent of transport.
func InstantiateSSIService(ctx context.Context, config config.ServicesConfig) (*SSIService, error) {
	if err := validateServiceConfig(config); err != nil {
		return nil, sdkutil.LoggingErrorMsg(err, "could not instantiate SSI Service, invalid config")
	}
	storageProvider, err := storage.NewStorage(storage.Type(config.StorageProvider), storageOptions(config)...)
	if err != nil {
		return nil, sdkutil.LoggingErrorMsgf(err, "could not instantiate storage provider: %s", config.StorageProvider)
	}
	service, err := instantiateServices(ctx, config, storageProvider, clock.New())
	if err != nil {
		return nil, sdkutil.LoggingErrorMsgf(err, "could not instantiate the ssi service")
	}
	return service, nil
}

func validateServiceConfig(config config.ServicesConfig) error {
	if !storage.IsStorageAvailable(storage.Type(config.StorageProvider)) {
		return fmt.Errorf("%s storage provider configured, but not available", config.StorageProvider)
	}
	if config.KeyStoreConfig.IsEmpty() {
		return fmt.Errorf("%s no config provided", framework.KeyStore)
	}
	if config.KeyStoreConfig.ServiceKeyPassword == "" && !config.KeyStoreConfig.EncryptionEnabled() {
		return fmt.Errorf("%s needs a service key password or a master key uri", framework.KeyStore)
	}
	return nil
}

func storageOptions(config config.ServicesConfig) []storage.Option {
	opts := make([]storage.Option, 0, len(config.StorageOptions))
	for _, o := range config.StorageOptions {
		opts = append(opts, storage.Option{ID: storage.OptionKey(o.ID), Option: o.Option})
	}
	return opts
}

// instantiateServices begins all instantiates and their dependencies
func instantiateServices(ctx context.Context, config config.ServicesConfig, storageProvider storage.ServiceStorage, c clock.Clock) (*SSIService, error) {
	keyStoreService, err := keystore.NewKeyStoreService(config.KeyStoreConfig, storageProvider)
	if err != nil {
		return nil, sdkutil.LoggingErrorMsg(err, "could not instantiate KeyStore service")
	}

	// the keystore seals its own records, everything else goes through serviceStorage
	serviceStorage := storageProvider
	if config.EncryptStorage {
		cipher, err := keystore.NewServiceEncryption(ctx, storageProvider, &config.KeyStoreConfig)
		if err != nil {
			return nil, sdkutil.LoggingErrorMsg(err, "could not create storage encryption")
		}
		serviceStorage = storage.NewEncryptedWrapper(storageProvider, cipher)
	}

	blobService, err := blob.NewBlobService(ctx, config.BlobConfig, serviceStorage)
	if err != nil {
		return nil, sdkutil.LoggingErrorMsg(err, "could not instantiate the blob service")
	}

	ledgerService, err := ledger.NewLedgerService(config.LedgerConfig, serviceStorage)
	if err != nil {
		return nil, sdkutil.LoggingErrorMsg(err, "could not instantiate the ledger service")
	}

	requestService, err := request.NewRequestService(config.RequestConfig, serviceStorage, c)
	if err != nil {
		return nil, sdkutil.LoggingErrorMsg(err, "could not instantiate the request service")
	}

	nonceService, err := nonce.NewNonceService(config.NonceConfig, serviceStorage, requestService, c)
	if err != nil {
		return nil, sdkutil.LoggingErrorMsg(err, "could not instantiate the nonce service")
	}

	ownershipService, err := ownership.NewOwnershipService(serviceStorage, requestService, nonceService, c)
	if err != nil {
		return nil, sdkutil.LoggingErrorMsg(err, "could not instantiate the ownership service")
	}

	issuanceService, err := issuance.NewIssuanceService(config.IssuanceConfig, keyStoreService, blobService, ledgerService, c)
	if err != nil {
		return nil, sdkutil.LoggingErrorMsg(err, "could not instantiate the issuance service")
	}

	reviewService, err := review.NewReviewService(serviceStorage, requestService, issuanceService, c)
	if err != nil {
		return nil, sdkutil.LoggingErrorMsg(err, "could not instantiate the review service")
	}

	disclosureService, err := disclosure.NewDisclosureService(config.DisclosureConfig, keyStoreService, blobService, c)
	if err != nil {
		return nil, sdkutil.LoggingErrorMsg(err, "could not instantiate the disclosure service")
	}

	verificationService, err := verification.NewVerificationService(config.VerificationConfig, keyStoreService, blobService, ledgerService, disclosureService)
	if err != nil {
		return nil, sdkutil.LoggingErrorMsg(err, "could not instantiate the verification service")
	}

	return &SSIService{
		KeyStore:     keyStoreService,
		Blob:         blobService,
		Ledger:       ledgerService,
		Request:      requestService,
		Nonce:        nonceService,
		Ownership:    ownershipService,
		Issuance:     issuanceService,
		Review:       reviewService,
		Disclosure:   disclosureService,
		Verification: verificationService,
		storage:      storageProvider,
	}, nil
}

// GetServices returns all services
func (s *SSIService) GetServices() []framework.Service {
	return []framework.Service{
		s.KeyStore,
		s.Blob,
		s.Ledger,
		s.Request,
		s.Nonce,
		s.Ownership,
		s.Issuance,
		s.Review,
		s.Disclosure,
		s.Verification,
	}
}

// Close releases the storage provider.
func (s *SSIService) Close() error {
	return s.storage.Close()
}
