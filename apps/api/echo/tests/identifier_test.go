package tests

import (
	"context"
	"net/http"
	"testing"

	"github.com/kmunyaka/shule/core/identifier"
	testutil "github.com/kmunyaka/shule/tests"
)

func Test_identifierApi_configCRUD(t *testing.T) {
	app := setup(t)
	adminToken := getAdminToken(t)

	tests := []httpTest{
		{
			name: "Auth required", method: http.MethodGet, path: "/v1/id-configs",
			wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken),
		},
		{
			name: "Admin required", method: http.MethodGet, path: "/v1/id-configs", token: getNonAdminToken(t),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden),
		},
		{
			name: "Empty list", method: http.MethodGet, path: "/v1/id-configs", token: adminToken,
			wantCode: http.StatusOK, wantData: []byte("[]"),
		},
		{
			name: "Create: format required", method: http.MethodPost, path: "/v1/id-configs", token: adminToken,
			body:     []byte(`{"id_type": "STUDENT_ID"}`),
			wantCode: http.StatusBadRequest, wantData: []byte(`{"format": "this field is required"}`),
		},
		{
			name: "Create: bad key", method: http.MethodPost, path: "/v1/id-configs", token: adminToken,
			body:     []byte(`{"id_type": "student id!", "format": "S-{COUNTER}"}`),
			wantCode: http.StatusBadRequest, wantData: []byte(`{"id_type": "only uppercase letters, digits and underscores are allowed"}`),
		},
		{
			name: "Create: missing counter", method: http.MethodPost, path: "/v1/id-configs", token: adminToken,
			body:     []byte(`{"id_type": "STUDENT_ID", "format": "STU-{YEAR}"}`),
			wantCode: http.StatusBadRequest, wantData: []byte(`{"format": "format must contain a {COUNTER} placeholder"}`),
		},
		{
			name: "Create: unknown placeholder", method: http.MethodPost, path: "/v1/id-configs", token: adminToken,
			body:     []byte(`{"id_type": "STUDENT_ID", "format": "STU-{FOO}-{COUNTER}"}`),
			wantCode: http.StatusBadRequest, wantData: []byte(`{"format": "unknown placeholder {FOO}"}`),
		},
		{
			name: "Retrieve: not found", method: http.MethodGet, path: "/v1/id-configs/STUDENT_ID", token: adminToken,
			wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: identifier.ErrNotFound.Error()}),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}

	// create, retrieve, update round trip
	req, rec := newAuthRequest(http.MethodPost, "/v1/id-configs", adminToken,
		[]byte(`{"id_type": "STUDENT_ID", "format": "STU-{YEAR}-{GRADE}-{SECTION}-{COUNTER:4}"}`))
	app.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create failed! code = %v; body = %s", rec.Code, rec.Body.String())
	}

	req, rec = newAuthRequest(http.MethodPost, "/v1/id-configs", adminToken,
		[]byte(`{"id_type": "STUDENT_ID", "format": "S-{COUNTER}"}`))
	app.ServeHTTP(rec, req)
	if rec.Code != http.StatusConflict {
		t.Errorf("duplicate create: code = %v, want %v", rec.Code, http.StatusConflict)
	}

	req, rec = newAuthRequest(http.MethodPut, "/v1/id-configs/STUDENT_ID", adminToken,
		[]byte(`{"active": false}`))
	app.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("update failed! code = %v; body = %s", rec.Code, rec.Body.String())
	}

	cfg, err := idRepo.GetConfig(context.Background(), "STUDENT_ID")
	if err != nil {
		t.Fatalf("GetConfig() failed: %v", err)
	}
	if cfg.Active {
		t.Error("update did not deactivate the config")
	}
}

func Test_identifierApi_previewAndGenerate(t *testing.T) {
	app := setup(t)
	adminToken := getAdminToken(t)

	testutil.CreateConfig(t, idRepo, "STUDENT_ID", "STU-{YEAR}-{GRADE}-{SECTION}-{COUNTER:4}", 41, true)

	renderPath := "/v1/id-configs/STUDENT_ID/preview?year=2025&grade=10&section=A"

	// preview does not claim the counter
	for i := 0; i < 2; i++ {
		req, rec := newAuthRequest(http.MethodGet, renderPath, adminToken)
		app.ServeHTTP(rec, req)
		tt := httpTest{wantCode: http.StatusOK, wantData: []byte(`{"id": "STU-2025-10-A-0041"}`)}
		checkCodeAndData(t, tt, rec)
	}

	// generate claims it
	req, rec := newAuthRequest(http.MethodPost, "/v1/id-configs/STUDENT_ID/generate", adminToken,
		[]byte(`{"year": 2025, "grade": "10", "section": "A"}`))
	app.ServeHTTP(rec, req)
	checkCodeAndData(t, httpTest{wantCode: http.StatusOK, wantData: []byte(`{"id": "STU-2025-10-A-0042"}`)}, rec)

	req, rec = newAuthRequest(http.MethodGet, renderPath, adminToken)
	app.ServeHTTP(rec, req)
	checkCodeAndData(t, httpTest{wantCode: http.StatusOK, wantData: []byte(`{"id": "STU-2025-10-A-0042"}`)}, rec)

	// reset the counter, then the next claim starts over
	req, rec = newAuthRequest(http.MethodPost, "/v1/id-configs/STUDENT_ID/reset-counter", adminToken,
		[]byte(`{"value": 0}`))
	app.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("reset-counter failed! code = %v; body = %s", rec.Code, rec.Body.String())
	}

	req, rec = newAuthRequest(http.MethodPost, "/v1/id-configs/STUDENT_ID/generate", adminToken,
		[]byte(`{"year": 2025, "grade": "10", "section": "A"}`))
	app.ServeHTTP(rec, req)
	checkCodeAndData(t, httpTest{wantCode: http.StatusOK, wantData: []byte(`{"id": "STU-2025-10-A-0001"}`)}, rec)
}

func Test_identifierApi_generateInactive(t *testing.T) {
	app := setup(t)
	adminToken := getAdminToken(t)

	testutil.CreateConfig(t, idRepo, "EMPLOYEE_ID", "EMP-{COUNTER:4}", 3, false)

	// preview still works on an inactive config
	req, rec := newAuthRequest(http.MethodGet, "/v1/id-configs/EMPLOYEE_ID/preview", adminToken)
	app.ServeHTTP(rec, req)
	checkCodeAndData(t, httpTest{wantCode: http.StatusOK, wantData: []byte(`{"id": "EMP-0003"}`)}, rec)

	// generate does not
	req, rec = newAuthRequest(http.MethodPost, "/v1/id-configs/EMPLOYEE_ID/generate", adminToken, []byte(`{}`))
	app.ServeHTTP(rec, req)
	tt := httpTest{
		wantCode: http.StatusConflict,
		wantData: marchallObj(t, httpErr{Error: identifier.ErrInactive.Error()}),
	}
	checkCodeAndData(t, tt, rec)
}
