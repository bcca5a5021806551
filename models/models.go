package models

// This file serves as the central export point for all database models
// Import this package to access all model types

// All models are automatically exported from their respective files:
// - User, RefreshToken from user.go
// - InterviewSession, InterviewContext from session.go
// - Turn, FacialAnalysis, EmotionReading from turn.go

// Database schema overview:
// 1. users - Managed by cookie-based authentication
// 2. interview_sessions - One row per interview attempt, holding the mode,
//    the immutable context snapshot, the running score and the status
// 3. turns - Ordered question/answer/score units, append-only per session
// 4. refresh_tokens - Long-lived tokens backing the auth cookies
