package handlers_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
)

func wsURL(server *httptest.Server, userID, token string) string {
	return "ws" + strings.TrimPrefix(server.URL, "http") + "/ws/notifications/" + userID + "?token=" + token
}

func (suite *HandlerTestSuite) TestWebSocket_RejectsBadCredentials() {
	_, memberID := suite.register("Uma", "uma@example.com")

	w := suite.do(http.MethodGet, "/ws/notifications/"+memberID, "", nil)
	suite.Equal(http.StatusUnauthorized, w.Code)

	w = suite.do(http.MethodGet, "/ws/notifications/"+memberID+"?token="+suite.adminToken, "", nil)
	suite.Equal(http.StatusForbidden, w.Code)

	w = suite.do(http.MethodGet, "/ws/notifications/not-a-uuid?token="+suite.adminToken, "", nil)
	suite.Equal(http.StatusBadRequest, w.Code)
}

func (suite *HandlerTestSuite) TestWebSocket_RejectsForeignOrigin() {
	memberToken, memberID := suite.register("Uma", "uma@example.com")
	server := httptest.NewServer(suite.router)
	defer server.Close()

	header := http.Header{}
	header.Set("Origin", "http://evil.example.com")
	_, resp, err := websocket.DefaultDialer.Dial(wsURL(server, memberID, memberToken), header)
	suite.Require().Error(err)
	suite.Require().NotNil(resp)
	suite.Equal(http.StatusForbidden, resp.StatusCode)
}

func (suite *HandlerTestSuite) TestWebSocket_DeliversEvents() {
	memberToken, memberID := suite.register("Uma", "uma@example.com")
	server := httptest.NewServer(suite.router)
	defer server.Close()

	header := http.Header{}
	header.Set("Origin", "http://localhost:3000")
	before := suite.mr.PubSubNumSub("project_updates")["project_updates"]
	conn, _, err := websocket.DefaultDialer.Dial(wsURL(server, memberID, memberToken), header)
	suite.Require().NoError(err)
	defer conn.Close()

	suite.Require().Eventually(func() bool {
		return suite.mr.PubSubNumSub("project_updates")["project_updates"] > before
	}, 2*time.Second, 5*time.Millisecond)

	w := suite.do(http.MethodPost, "/api/v1/projects", suite.adminToken, gin.H{"name": "Atlas"})
	suite.Require().Equal(http.StatusCreated, w.Code)

	suite.Require().NoError(conn.SetReadDeadline(time.Now().Add(2 * time.Second)))
	_, data, err := conn.ReadMessage()
	suite.Require().NoError(err)

	var msg map[string]interface{}
	suite.Require().NoError(json.Unmarshal(data, &msg))
	suite.Equal("project_created", msg["event"])
	suite.Equal("Atlas", msg["project_name"])

	suite.Require().NoError(conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"ping"}`)))
	_, data, err = conn.ReadMessage()
	suite.Require().NoError(err)
	suite.JSONEq(`{"type":"pong"}`, string(data))
}
