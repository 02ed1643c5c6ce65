package handlers

import "github.com/gin-gonic/gin"

// RegisterRoutes wires the REST API. identity guards every route except user
// registration.
func RegisterRoutes(router gin.IRouter, identity gin.HandlerFunc, users *UserHandler, groups *GroupHandler, messages *MessageHandler) {
	router.POST("/users", users.Register)

	api := router.Group("/", identity)
	api.GET("/me", users.Me)
	api.POST("/presence/heartbeat", users.Heartbeat)
	api.POST("/friends/requests", users.SendFriendRequest)
	api.POST("/friends/requests/:user_id/accept", users.AcceptFriendRequest)
	api.DELETE("/friends/requests/:user_id", users.DeclineFriendRequest)

	api.POST("/groups", groups.CreateGroup)
	api.GET("/groups", groups.ListGroups)
	api.POST("/groups/join", groups.JoinGroup)
	api.PUT("/groups/:group_id/active", groups.Activate)
	api.DELETE("/session/active", groups.Deactivate)
	api.GET("/groups/:group_id/view", groups.GetView)
	api.DELETE("/groups/:group_id/members/:user_id", groups.KickMember)
	api.POST("/groups/:group_id/members/:user_id/mute", groups.MuteMember)
	api.DELETE("/groups/:group_id/members/:user_id/mute", groups.UnmuteMember)
	api.POST("/groups/:group_id/call", groups.JoinCall)
	api.DELETE("/groups/:group_id/call", groups.LeaveCall)

	api.POST("/groups/:group_id/messages", messages.PostMessage)
	api.PATCH("/groups/:group_id/messages/:message_id", messages.EditMessage)
	api.DELETE("/groups/:group_id/messages/:message_id", messages.DeleteMessage)
	api.POST("/groups/:group_id/messages/:message_id/reactions", messages.React)
	api.GET("/blobs/:blob_key", messages.DownloadBlob)
}
