package main

import "github.com/urmatdigital/tulpar/internal/app"

// @title           Tulpar Express Auth API
// @version         1.0
// @description     Аутентификация по номеру телефона с кодом через Telegram.
// @BasePath        /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	app.Run()
}
