package tests

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"

	. "github.com/kmunyaka/shule/apps/api/echo"
	"github.com/kmunyaka/shule/core"
	"github.com/kmunyaka/shule/core/access"
	"github.com/kmunyaka/shule/core/identifier"
	"github.com/kmunyaka/shule/core/student"
	appfs "github.com/kmunyaka/shule/fs"
	emailsvc "github.com/kmunyaka/shule/services/email"
	inmemdb "github.com/kmunyaka/shule/storage/database/inmem"
	testutil "github.com/kmunyaka/shule/tests"
)

var (
	conf       *core.Config
	idRepo     identifier.Repository
	accessRepo access.Repository
	stdRepo    student.Repository

	errMissingToken = httpErr{Error: "missing or malformed jwt"}
	errForbidden    = httpErr{Error: "permission denied"}
)

func setup(t *testing.T) Server {
	t.Helper()

	conf = testutil.NewConfig()
	logger := testutil.NewLogger()

	// set up repos
	db := inmemdb.NewDB()
	idRepo = inmemdb.NewIdentifierRepository(db)
	accessRepo = inmemdb.NewAccessRepository(db)
	stdRepo = inmemdb.NewStudentRepository(db)

	// set up services
	mailSvc := emailsvc.NewConsoleServiceMock(conf)
	idSvc := identifier.NewService(idRepo, logger)
	stdSvc := student.NewService(stdRepo, logger)
	accessSvc := access.NewService(accessRepo, stdRepo, mailSvc, logger, conf)

	validate := validator.New()
	translator := newTranslator()
	core.InitValidators(validate, translator)
	core.ParseEmailTemplates(logger, appfs.FS, "assets/templates/email")

	// set up server
	return NewServer(
		ServerDeps{
			Conf:          conf,
			Logger:        logger,
			IdentifierSvc: idSvc,
			AccessSvc:     accessSvc,
			StudentSvc:    stdSvc,
			Validate:      validate,
			Translator:    translator,
		},
	)
}

func newTranslator() ut.Translator {
	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")
	return translator
}

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func newRequest(method, path string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	return newAuthRequest(method, path, "", data...)
}

func getAdminToken(t *testing.T) string {
	t.Helper()
	claims := NewAdminClaims(conf, "admin@test.cd")
	token, err := GenerateToken(conf, claims)
	if err != nil {
		t.Fatalf("getAdminToken() failed: %v", err)
	}
	return token
}

func getNonAdminToken(t *testing.T) string {
	t.Helper()
	claims := NewAdminClaims(conf, "pleb@test.cd")
	claims.IsAdmin = false
	token, err := GenerateToken(conf, claims)
	if err != nil {
		t.Fatalf("getNonAdminToken() failed: %v", err)
	}
	return token
}

func marchallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marchallObj() failed: %v", err)
	}
	return data
}

func jsonBytesEqual(t *testing.T, b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	if reflect.DeepEqual(j1, j2) {
		return true, nil
	}
	if j1 == nil || j2 == nil {
		return false, nil
	}
	return assert.ObjectsAreEqual(j1, j2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	t.Helper()
	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v", rec.Code, tt.wantCode)
	}
	ok, err := jsonBytesEqual(t, rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! body mismatch\n%s", testutil.Diff(t, string(tt.wantData), rec.Body.String()))
	}
}
