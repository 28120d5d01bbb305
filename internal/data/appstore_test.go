package data

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mottobotto/testflight-bot/internal/biz/domain"
	"github.com/mottobotto/testflight-bot/internal/infra/appstoreconnect"
)

type keyMap map[string]*domain.DistributionKey

func (k keyMap) GetDistributionKey(_ context.Context, id string) (*domain.DistributionKey, error) {
	return k[id], nil
}

func testKey(t *testing.T) *domain.DistributionKey {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	der, err := x509.MarshalPKCS8PrivateKey(key)
	require.NoError(t, err)
	return &domain.DistributionKey{
		ID:         "key1",
		IssuerID:   "issuer",
		KeyID:      "KID1",
		PrivateKey: string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})),
	}
}

func newAppStoreTest(t *testing.T, handler http.HandlerFunc, defaultKeyID string) *appStoreRepo {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client := appstoreconnect.NewClient(srv.URL, srv.Client())
	return NewAppStoreRepo(client, keyMap{"key1": testKey(t)}, defaultKeyID).(*appStoreRepo)
}

func distributionKind(t *testing.T, err error) domain.DistributionErrorKind {
	t.Helper()
	de, ok := domain.AsDistributionError(err)
	require.True(t, ok, "expected a distribution error, got %v", err)
	return de.Kind
}

func TestAppStoreRepo_ConfigurationErrors(t *testing.T) {
	r := newAppStoreTest(t, func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
	}, "")
	ctx := context.Background()

	noKey := &domain.App{ID: "app1", Name: "Botto", BetaGroupID: "g1"}
	err := r.CreateBetaTester(ctx, noKey, "a@example.com", "", "")
	assert.Equal(t, domain.DistributionErrorCredentialsNotConfigured, distributionKind(t, err))

	unknownKey := &domain.App{ID: "app1", Name: "Botto", BetaGroupID: "g1", DistributionKeyID: "key9"}
	err = r.RemoveFromBetaGroup(ctx, unknownKey, "bt1")
	assert.Equal(t, domain.DistributionErrorCredentialsNotConfigured, distributionKind(t, err))

	noGroup := &domain.App{ID: "app1", Name: "Botto", DistributionKeyID: "key1"}
	err = r.CreateBetaTester(ctx, noGroup, "a@example.com", "", "")
	assert.Equal(t, domain.DistributionErrorGroupNotConfigured, distributionKind(t, err))
	de, _ := domain.AsDistributionError(err)
	assert.Equal(t, "Botto", de.AppName)

	_, err = r.FindBetaTesters(ctx, "a@example.com", nil)
	assert.Equal(t, domain.DistributionErrorCredentialsNotConfigured, distributionKind(t, err))
}

func TestAppStoreRepo_FindBetaTesters(t *testing.T) {
	r := newAppStoreTest(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "", r.URL.Query().Get("filter[apps]"))
		w.Write([]byte(`{"data":[{"type":"betaTesters","id":"bt1","attributes":{"email":"a@example.com"},
			"relationships":{"betaGroups":{"data":[{"type":"betaGroups","id":"g1"}]}}}]}`))
	}, "key1")

	testers, err := r.FindBetaTesters(context.Background(), "a@example.com", nil)
	require.NoError(t, err)
	assert.Equal(t, []domain.BetaTester{{ID: "bt1", Email: "a@example.com", BetaGroupIDs: []string{"g1"}}}, testers)
}

func TestAppStoreRepo_ClassifiesResponses(t *testing.T) {
	status := http.StatusConflict
	r := newAppStoreTest(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		if status == http.StatusConflict {
			w.Write([]byte(`{"errors":[{"code":"ENTITY_ERROR.ATTRIBUTE.INVALID","detail":"bad","source":{"pointer":"/data/attributes/firstName"}}]}`))
		}
	}, "")
	app := &domain.App{ID: "app1", Name: "Botto", BetaGroupID: "g1", DistributionKeyID: "key1"}
	ctx := context.Background()

	err := r.CreateBetaTester(ctx, app, "a@example.com", "!!", "")
	assert.Equal(t, domain.DistributionErrorInvalidAttribute, distributionKind(t, err))
	de, _ := domain.AsDistributionError(err)
	assert.Equal(t, "firstName", de.Details)

	status = http.StatusInternalServerError
	err = r.DeleteBetaTester(ctx, app, "bt1")
	assert.Equal(t, domain.DistributionErrorGeneric, distributionKind(t, err))
}
