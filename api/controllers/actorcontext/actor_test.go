package actorcontext

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/dormship-backend/api/middleware"
	"github.com/angelmondragon/dormship-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/dormship-backend/pkg/errors"
)

func TestResolve(t *testing.T) {
	id := uuid.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(middleware.WithIdentity(req.Context(), id, enums.UserRoleAdmin))

	actor, err := Resolve(req)
	require.NoError(t, err)
	require.Equal(t, id, actor.ID)
	require.Equal(t, enums.UserRoleAdmin, actor.Role)

	_, err = Resolve(httptest.NewRequest(http.MethodGet, "/", nil))
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized))
}
