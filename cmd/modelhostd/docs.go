package main

// General API documentation for swaggo. Run `make swagger-gen` to generate docs.
//
// @title           modelhost API
// @version         1.0
// @description     HTTP API for local AI model lifecycle management, cached inference and performance monitoring.
//
// @contact.name   modelhost maintainers
// @contact.url    https://github.com/your-org/modelhost
//
// @license.name   MIT
// @license.url    https://opensource.org/licenses/MIT
//
// @BasePath  /
//
// @schemes http
